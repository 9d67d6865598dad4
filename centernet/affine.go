package centernet

import (
	"errors"
	"fmt"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
	"math"
)

// ErrDegenerateTransform 仿射参数无法构成有效变换
var ErrDegenerateTransform = errors.New("仿射变换参数退化")

// getAffineTransform 构建裁剪平面与目标平面之间的仿射变换
//
// 以 center 为中心、scale 为边长的区域映射到 outW x outH 的目标平面。
// 变换由中心点、方向点和与之垂直的第三点共同确定。
//
// # Params:
//
//	center: 裁剪区域中心 (x, y)
//	scale: 裁剪区域边长 (宽, 高)
//	rot: 旋转角度 (单位: 度)
//	outW, outH: 目标平面宽高
//	inv: 为 true 时返回逆向变换 (目标平面 -> 原平面)
func getAffineTransform(center, scale [2]float64, rot float64, outW, outH int, inv bool) (f64.Aff3, error) {
	if !isFinite(center[0]) || !isFinite(center[1]) {
		return f64.Aff3{}, fmt.Errorf("%w: center=%v", ErrDegenerateTransform, center)
	}
	if !(scale[0] > 0) || !(scale[1] > 0) || !isFinite(scale[0]) || !isFinite(scale[1]) {
		return f64.Aff3{}, fmt.Errorf("%w: scale=%v", ErrDegenerateTransform, scale)
	}
	if outW <= 0 || outH <= 0 {
		return f64.Aff3{}, fmt.Errorf("%w: 输出尺寸 %dx%d", ErrDegenerateTransform, outW, outH)
	}

	srcW := scale[0]
	dstW, dstH := float64(outW), float64(outH)

	rotRad := rot * math.Pi / 180
	srcDir := rotatePoint([2]float64{0, srcW * -0.5}, rotRad)
	dstDir := [2]float64{0, dstW * -0.5}

	var src, dst [3][2]float64
	src[0] = center
	src[1] = [2]float64{center[0] + srcDir[0], center[1] + srcDir[1]}
	src[2] = thirdPoint(src[0], src[1])

	dst[0] = [2]float64{dstW * 0.5, dstH * 0.5}
	dst[1] = [2]float64{dst[0][0] + dstDir[0], dst[0][1] + dstDir[1]}
	dst[2] = thirdPoint(dst[0], dst[1])

	if inv {
		src, dst = dst, src
	}
	return solveAffine(src, dst)
}

// rotatePoint 将点绕原点旋转 rad 弧度
func rotatePoint(p [2]float64, rad float64) [2]float64 {
	sn, cs := math.Sin(rad), math.Cos(rad)
	return [2]float64{p[0]*cs - p[1]*sn, p[0]*sn + p[1]*cs}
}

// thirdPoint 取 b 为起点、与 a-b 垂直的点, 三点不共线
func thirdPoint(a, b [2]float64) [2]float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return [2]float64{b[0] - dy, b[1] + dx}
}

// solveAffine 由三组对应点求解 2x3 仿射矩阵
func solveAffine(src, dst [3][2]float64) (f64.Aff3, error) {
	a := mat.NewDense(3, 3, []float64{
		src[0][0], src[0][1], 1,
		src[1][0], src[1][1], 1,
		src[2][0], src[2][1], 1,
	})
	b := mat.NewDense(3, 2, []float64{
		dst[0][0], dst[0][1],
		dst[1][0], dst[1][1],
		dst[2][0], dst[2][1],
	})

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return f64.Aff3{}, fmt.Errorf("%w: %v", ErrDegenerateTransform, err)
	}

	return f64.Aff3{
		x.At(0, 0), x.At(1, 0), x.At(2, 0),
		x.At(0, 1), x.At(1, 1), x.At(2, 1),
	}, nil
}

// affinePoint 对单个点应用仿射变换
func affinePoint(t f64.Aff3, x, y float32) (float32, float32) {
	fx, fy := float64(x), float64(y)
	return float32(t[0]*fx + t[1]*fy + t[2]), float32(t[3]*fx + t[4]*fy + t[5])
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
