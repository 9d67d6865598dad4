package centernet

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch 张量形状与解码要求不符
var ErrShapeMismatch = errors.New("张量形状不匹配")

// candidate 解码过程中的候选峰值
type candidate struct {
	score   float32
	classID int
	ind     int // 热力图平面内的扁平下标 (y*W + x)
	x, y    float32
}

// Decode 将 CenterNet 的三个输出头解码为原图坐标系下的检测框
//
// 热力图经 sigmoid 激活后在 3x3 邻域内做极大值抑制, 两级 top-K 选出
// 候选峰值, 再由偏移与宽高回归还原检测框, 最终通过逆仿射变换投影回
// 原图坐标系。返回的坐标未做边界裁剪。
//
// # Params:
//
//	heat: 中心点热力图, 形状 [C, H, W], 可带前导 batch 维 1
//	reg: 中心点偏移回归, 形状 [2, H, W]
//	wh: 宽高回归, 形状 [2, H, W]
//	origW, origH: 原图宽高
//	threshold: 置信度阈值, 分数等于阈值的候选会被保留
func Decode(heat, reg, wh Tensor, origW, origH int, threshold float32) ([]DetResult, error) {
	c, h, w, err := checkShapes(heat, reg, wh)
	if err != nil {
		return nil, err
	}

	// sigmoid 激活
	scores := make([]float32, len(heat.Data))
	for i, v := range heat.Data {
		scores[i] = sigmoid(v)
	}

	peaks := suppressNonMaxima(scores, c, h, w)
	cands := topKCandidates(peaks, c, h, w, numPredictions)
	results := reconstructBoxes(cands, reg.Data, wh.Data, h, w, threshold)

	return projectToImage(results, origW, origH, h, w)
}

// checkShapes 校验三个输出头的形状约束, 返回热力图的 C, H, W
func checkShapes(heat, reg, wh Tensor) (int, int, int, error) {
	c, h, w, err := planeShape(heat, "heat", 0)
	if err != nil {
		return 0, 0, 0, err
	}
	if h*w < numPredictions {
		return 0, 0, 0, fmt.Errorf("%w: 热力图平面 %dx%d 不足以选出 %d 个候选", ErrShapeMismatch, w, h, numPredictions)
	}

	for _, t := range []struct {
		name   string
		tensor Tensor
	}{{"reg", reg}, {"wh", wh}} {
		_, th, tw, err := planeShape(t.tensor, t.name, 2)
		if err != nil {
			return 0, 0, 0, err
		}
		if th != h || tw != w {
			return 0, 0, 0, fmt.Errorf("%w: %s 的空间尺寸 %dx%d 与热力图 %dx%d 不一致", ErrShapeMismatch, t.name, tw, th, w, h)
		}
	}
	return c, h, w, nil
}

// planeShape 校验形状为 [C, H, W] 或 [1, C, H, W], 返回各维大小
func planeShape(t Tensor, name string, wantC int64) (int, int, int, error) {
	dims := t.Shape
	if len(dims) == 4 {
		if dims[0] != 1 {
			return 0, 0, 0, fmt.Errorf("%w: %s 的 batch 维应为 1, 实际 %d", ErrShapeMismatch, name, dims[0])
		}
		dims = dims[1:]
	}
	if len(dims) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %s 的形状应为 [C, H, W], 实际 %v", ErrShapeMismatch, name, t.Shape)
	}

	c, h, w := dims[0], dims[1], dims[2]
	if wantC > 0 && c != wantC {
		return 0, 0, 0, fmt.Errorf("%w: %s 的通道数应为 %d, 实际 %d", ErrShapeMismatch, name, wantC, c)
	}
	if c < 1 || h < 1 || w < 1 {
		return 0, 0, 0, fmt.Errorf("%w: %s 的形状非法: %v", ErrShapeMismatch, name, t.Shape)
	}
	if int64(len(t.Data)) != c*h*w {
		return 0, 0, 0, fmt.Errorf("%w: %s 的数据长度 %d 与形状 %v 不符", ErrShapeMismatch, name, len(t.Data), t.Shape)
	}
	return int(c), int(h), int(w), nil
}

// suppressNonMaxima 3x3 邻域内保留局部最大值, 其余位置置零
//
// 与邻域最大值相等即视为峰值, 平顶区域的多个点会同时保留。
func suppressNonMaxima(scores []float32, c, h, w int) []float32 {
	peaks := make([]float32, len(scores))
	for ci := 0; ci < c; ci++ {
		plane := scores[ci*h*w : (ci+1)*h*w]
		out := peaks[ci*h*w : (ci+1)*h*w]

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := plane[y*w+x]
				localMax := v
				for dy := -1; dy <= 1; dy++ {
					ny := y + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := x + dx
						if nx < 0 || nx >= w {
							continue
						}
						if nv := plane[ny*w+nx]; nv > localMax {
							localMax = nv
						}
					}
				}
				if v == localMax {
					out[y*w+x] = v
				}
			}
		}
	}
	return peaks
}

// topKCandidates 两级 top-K 选取
//
// 先在每个类别平面内选出 k 个最高分, 再在全部 C*k 个候选中选出最终的
// k 个。选取基于快速选择, 结果不保证按分数有序。
func topKCandidates(peaks []float32, c, h, w, k int) []candidate {
	plane := h * w

	classInds := make([][]int, c)
	classScores := make([]float32, 0, c*k)
	for ci := 0; ci < c; ci++ {
		inds := topKIndices(peaks[ci*plane:(ci+1)*plane], k)
		classInds[ci] = inds
		for _, ind := range inds {
			classScores = append(classScores, peaks[ci*plane+ind])
		}
	}

	cands := make([]candidate, 0, k)
	for _, j := range topKIndices(classScores, k) {
		classID := j / k
		ind := classInds[classID][j%k]
		cands = append(cands, candidate{
			score:   classScores[j],
			classID: classID,
			ind:     ind,
			x:       float32(ind % w),
			y:       float32(ind / w),
		})
	}
	return cands
}

// topKIndices 返回 k 个最大值的下标, 不保证有序
func topKIndices(vals []float32, k int) []int {
	inds := make([]int, len(vals))
	for i := range inds {
		inds[i] = i
	}
	if k >= len(inds) {
		return inds
	}

	lo, hi := 0, len(inds)-1
	for lo < hi {
		p := partitionDesc(vals, inds, lo, hi)
		switch {
		case p == k-1:
			return inds[:k]
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
	return inds[:k]
}

// partitionDesc 对 inds[lo..hi] 以中间元素为基准做降序划分, 返回基准的最终位置
func partitionDesc(vals []float32, inds []int, lo, hi int) int {
	mid := lo + (hi-lo)/2
	inds[mid], inds[hi] = inds[hi], inds[mid]
	pivot := vals[inds[hi]]

	p := lo
	for i := lo; i < hi; i++ {
		if vals[inds[i]] > pivot {
			inds[p], inds[i] = inds[i], inds[p]
			p++
		}
	}
	inds[p], inds[hi] = inds[hi], inds[p]
	return p
}

// reconstructBoxes 根据偏移与宽高回归还原网格坐标系下的检测框
func reconstructBoxes(cands []candidate, reg, wh []float32, h, w int, threshold float32) []DetResult {
	plane := h * w
	results := make([]DetResult, 0, len(cands))

	for _, cand := range cands {
		if cand.score < threshold {
			continue
		}

		// 中心点 = 峰值格点 + 偏移回归
		cx := cand.x + reg[cand.ind]
		cy := cand.y + reg[plane+cand.ind]
		bw := wh[cand.ind]
		bh := wh[plane+cand.ind]

		results = append(results, DetResult{
			ClassID: cand.classID,
			Score:   cand.score,
			X1:      cx - bw/2,
			Y1:      cy - bh/2,
			X2:      cx + bw/2,
			Y2:      cy + bh/2,
		})
	}
	return results
}

// projectToImage 将网格坐标系下的检测框投影回原图坐标系
func projectToImage(results []DetResult, origW, origH, gridH, gridW int) ([]DetResult, error) {
	center := [2]float64{float64(origW) / 2, float64(origH) / 2}
	side := float64(max(origH, origW))

	trans, err := getAffineTransform(center, [2]float64{side, side}, 0, gridW, gridH, true)
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].X1, results[i].Y1 = affinePoint(trans, results[i].X1, results[i].Y1)
		results[i].X2, results[i].Y2 = affinePoint(trans, results[i].X2, results[i].Y2)
	}
	return results, nil
}
