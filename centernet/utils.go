package centernet

import (
	"bufio"
	"fmt"
	"github.com/getcharzp/go-centernet"
	"github.com/up-zero/gotool/imageutil"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"image"
	"image/color"
	"math"
	"os"
	"strings"
)

// preprocess 将原图仿射变换到网络输入平面并归一化为 CHW 排布
//
// 以原图中心为中心、长边为边长裁剪, 缩放到 inputW x inputH, 未覆盖的
// 区域填充为 0。
//
// # Params:
//
//	img: 原图
//	inputW, inputH: 网络输入宽高
//	mean, std: RGB 归一化参数
func preprocess(img image.Image, inputW, inputH int, mean, std [3]float32) ([]float32, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	center := [2]float64{
		float64(bounds.Min.X) + float64(origW)/2,
		float64(bounds.Min.Y) + float64(origH)/2,
	}
	side := float64(max(origH, origW))

	trans, err := getAffineTransform(center, [2]float64{side, side}, 0, inputW, inputH, false)
	if err != nil {
		return nil, err
	}
	warped := warpAffine(img, trans, inputW, inputH)

	// 准备 Tensor 数据 (CHW + Normalize)
	plane := inputW * inputH
	data := make([]float32, 3*plane)
	for y := 0; y < inputH; y++ {
		for x := 0; x < inputW; x++ {
			r, g, b, _ := warped.At(x, y).RGBA()

			idx := y*inputW + x
			data[idx] = (float32(r)/65535.0 - mean[0]) / std[0]
			data[plane+idx] = (float32(g)/65535.0 - mean[1]) / std[1]
			data[2*plane+idx] = (float32(b)/65535.0 - mean[2]) / std[2]
		}
	}
	return data, nil
}

// warpAffine 按仿射矩阵将原图重采样到 w x h 的目标平面, 双线性插值
func warpAffine(img image.Image, trans f64.Aff3, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Transform(dst, trans, img, img.Bounds(), draw.Src, nil)
	return dst
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

// LoadLabels 从文本文件加载类别标签, 每行一个, 空行跳过
//
// # Params:
//
//	path: 标签文件路径
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开标签文件失败: %w", err)
	}
	defer f.Close()

	labels := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取标签文件失败: %w", err)
	}
	return labels, nil
}

// DrawDetResult 将检测框与类别标签绘制到图片上
//
// # Params:
//
//	img: 原图
//	results: 检测结果
//	td: 文本绘制工具, 为 nil 时只画框
func DrawDetResult(img image.Image, results []DetResult, td *vision.TextDrawer) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	boxColor := color.RGBA{R: 255, A: 255}
	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	for _, res := range results {
		rect := res.Rect(bounds.Dx(), bounds.Dy())
		imageutil.DrawThickRectOutline(dst, rect, boxColor, 3)

		if td == nil {
			continue
		}
		caption := res.Label
		if caption == "" {
			caption = fmt.Sprintf("%d", res.ClassID)
		}
		caption = fmt.Sprintf("%s %.2f", caption, res.Score)

		// 框上方的标签底色
		tw, th := td.TextSize(caption)
		bgRect := image.Rect(rect.Min.X, rect.Min.Y-th-2, rect.Min.X+tw+4, rect.Min.Y)
		draw.Draw(dst, bgRect.Intersect(bounds), image.NewUniform(boxColor), image.Point{}, draw.Src)
		td.DrawText(dst, caption, rect.Min.X+2, rect.Min.Y-4, textColor)
	}
	return dst
}
