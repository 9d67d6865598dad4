package centernet

import (
	"github.com/getcharzp/go-centernet"
	"image"
)

const (
	// numPredictions 解码阶段保留的候选框数量
	numPredictions = 100
)

// Config 引擎的初始化参数
type Config struct {
	ModelPath          string // ONNX 模型路径
	OnnxRuntimeLibPath string // ONNX Runtime 动态库路径

	// 推理参数
	ConfThreshold float32 // 置信度阈值 (默认 0.3), 分数等于阈值的候选会被保留

	// 模型参数
	InputSize int        // 网络输入尺寸 (默认 384), 模型输入为静态尺寸时以模型为准
	Mean      [3]float32 // RGB 均值
	Std       [3]float32 // RGB 方差

	// 输出名 (可选), 三个需要同时指定;
	// 为空时按输出名字典序依次识别为 热力图 / 中心点偏移 / 宽高回归
	HeatmapOutput string
	OffsetOutput  string
	SizeOutput    string

	// 类别标签 (可选), 下标与 ClassID 对应
	Labels []string

	// 可选参数
	UseCuda           bool // (可选) 是否启用 CUDA
	NumThreads        int  // (可选) ONNX 线程数, 默认由CPU核心数决定
	EnableCpuMemArena bool // (可选) 是否开启 ONNX 内存池
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: vision.DefaultLibraryPath(),
		ModelPath:          "./centernet_weights/ctdet_coco_dlav0_384.onnx",
		ConfThreshold:      0.3,
		InputSize:          384,
		Mean:               [3]float32{0.470, 0.447, 0.408},
		Std:                [3]float32{0.278, 0.274, 0.289},
	}
}

// Tensor CHW 排布的浮点张量
type Tensor struct {
	Data  []float32
	Shape []int64
}

// DetResult 目标检测结果
type DetResult struct {
	// 分类ID，例如：
	//	0: person
	//	1: bicycle
	//	2: car
	// 详细映射参考：
	//	https://github.com/xingyizhou/CenterNet/blob/master/src/lib/datasets/dataset/coco.py
	ClassID int
	Label   string // 类别标签, 未配置 Labels 时为空
	Score   float32

	// 原图坐标系下的检测框, 未做边界裁剪, 可能越出图片范围
	X1, Y1, X2, Y2 float32
}

// Rect 裁剪到图片范围内的整数检测框
//
// # Params:
//
//	origW, origH: 原图宽高
func (r DetResult) Rect(origW, origH int) image.Rectangle {
	x1 := max(0, int(r.X1))
	y1 := max(0, int(r.Y1))
	x2 := min(origW, int(r.X2))
	y2 := min(origH, int(r.Y2))
	return image.Rect(x1, y1, x2, y2)
}
