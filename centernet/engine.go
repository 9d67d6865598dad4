package centernet

import (
	"fmt"
	"github.com/getcharzp/go-centernet"
	"github.com/up-zero/gotool/convertutil"
	"image"
	"log"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Engine CenterNet 检测引擎
type Engine struct {
	session *ort.DynamicAdvancedSession
	config  Config

	inputW, inputH int
}

// NewEngine 初始化 CenterNet 引擎
//
// 模型需要有 1 个输入 (NCHW, 3 通道) 和 3 个输出 (热力图 / 中心点偏移 /
// 宽高回归)。输出角色可在 Config 中显式指定, 否则按输出名字典序识别。
func NewEngine(cfg Config) (*Engine, error) {
	onnxConfig := new(vision.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, onnxConfig); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := onnxConfig.New(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("读取模型输入输出信息失败: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("模型应只有 1 个输入, 实际 %d 个", len(inputs))
	}
	if len(outputs) != 3 {
		return nil, fmt.Errorf("模型应有 3 个输出, 实际 %d 个", len(outputs))
	}

	inputW, inputH, err := resolveInputSize(inputs[0], cfg.InputSize)
	if err != nil {
		return nil, err
	}
	roles, err := resolveOutputs(cfg, outputs)
	if err != nil {
		return nil, err
	}

	// 标签数量与热力图通道数不一致时提示
	if len(cfg.Labels) > 0 {
		for _, info := range outputs {
			if info.Name != roles[0] || len(info.Dimensions) != 4 {
				continue
			}
			if c := info.Dimensions[1]; c > 0 && int(c) != len(cfg.Labels) {
				log.Printf("标签数量 %d 与模型类别数 %d 不一致", len(cfg.Labels), c)
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{inputs[0].Name}, roles[:], onnxConfig.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("创建 ONNX 会话失败: %w", err)
	}

	return &Engine{
		session: session,
		config:  cfg,
		inputW:  inputW,
		inputH:  inputH,
	}, nil
}

// resolveInputSize 从模型输入维度推断网络输入尺寸
//
// 维度为动态时回退到配置的 InputSize。
func resolveInputSize(info ort.InputOutputInfo, fallback int) (int, int, error) {
	dims := info.Dimensions
	if len(dims) != 4 {
		return 0, 0, fmt.Errorf("模型输入维度应为 [N, C, H, W], 实际 %v", dims)
	}
	if dims[1] != 3 {
		return 0, 0, fmt.Errorf("模型输入通道数应为 3, 实际 %d", dims[1])
	}

	h, w := int(dims[2]), int(dims[3])
	if h <= 0 {
		h = fallback
	}
	if w <= 0 {
		w = fallback
	}
	if h <= 0 || w <= 0 {
		return 0, 0, fmt.Errorf("无法确定网络输入尺寸, 请配置 InputSize")
	}
	return w, h, nil
}

// resolveOutputs 确定三个输出头的角色, 依次为 热力图 / 中心点偏移 / 宽高回归
func resolveOutputs(cfg Config, infos []ort.InputOutputInfo) ([3]string, error) {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}

	roles := [3]string{cfg.HeatmapOutput, cfg.OffsetOutput, cfg.SizeOutput}
	if roles[0] != "" || roles[1] != "" || roles[2] != "" {
		for _, role := range roles {
			if role == "" {
				return roles, fmt.Errorf("HeatmapOutput/OffsetOutput/SizeOutput 需要同时指定")
			}
			found := false
			for _, name := range names {
				if name == role {
					found = true
					break
				}
			}
			if !found {
				return roles, fmt.Errorf("模型中不存在输出 %s", role)
			}
		}
		return roles, nil
	}

	sort.Strings(names)
	return [3]string{names[0], names[1], names[2]}, nil
}

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("销毁 ONNX 会话失败: %w", err)
		}
	}
	return nil
}

// Predict 执行检测推理
func (e *Engine) Predict(img image.Image) ([]DetResult, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	// 预处理
	data, err := preprocess(img, e.inputW, e.inputH, e.config.Mean, e.config.Std)
	if err != nil {
		return nil, fmt.Errorf("预处理失败: %w", err)
	}

	inputShape := ort.NewShape(1, 3, int64(e.inputH), int64(e.inputW))
	inputTensor, err := ort.NewTensor(inputShape, data)
	if err != nil {
		return nil, fmt.Errorf("创建 Input Tensor 失败: %w", err)
	}
	defer inputTensor.Destroy()

	// 推理
	outputs := make([]ort.Value, 3)
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("推理失败: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	heat, err := outputTensor(outputs[0])
	if err != nil {
		return nil, err
	}
	reg, err := outputTensor(outputs[1])
	if err != nil {
		return nil, err
	}
	wh, err := outputTensor(outputs[2])
	if err != nil {
		return nil, err
	}

	// 解码
	results, err := Decode(heat, reg, wh, origW, origH, e.config.ConfThreshold)
	if err != nil {
		return nil, fmt.Errorf("解码失败: %w", err)
	}

	// 附加类别标签
	for i := range results {
		if results[i].ClassID < len(e.config.Labels) {
			results[i].Label = e.config.Labels[results[i].ClassID]
		}
	}
	return results, nil
}

// outputTensor 将 ONNX 输出包装为 Tensor
func outputTensor(v ort.Value) (Tensor, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("模型输出不是 float32 张量")
	}
	return Tensor{Data: t.GetData(), Shape: t.GetShape()}, nil
}
