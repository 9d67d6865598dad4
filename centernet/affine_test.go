package centernet

import (
	"errors"
	"math"
	"testing"
)

func TestGetAffineTransform_Identity(t *testing.T) {
	// 中心与边长和目标平面完全一致时为恒等变换
	trans, err := getAffineTransform([2]float64{2, 2}, [2]float64{4, 4}, 0, 4, 4, false)
	if err != nil {
		t.Fatalf("构建仿射变换失败: %v", err)
	}

	want := [6]float64{1, 0, 0, 0, 1, 0}
	for i := range want {
		if math.Abs(trans[i]-want[i]) > 1e-9 {
			t.Fatalf("矩阵元素 %d: 期望 %v, 实际 %v", i, want[i], trans[i])
		}
	}
}

func TestGetAffineTransform_Scale(t *testing.T) {
	// 640x480 原图按长边 640 裁剪到 128x128: x'=0.2x, y'=0.2y+16
	trans, err := getAffineTransform([2]float64{320, 240}, [2]float64{640, 640}, 0, 128, 128, false)
	if err != nil {
		t.Fatalf("构建仿射变换失败: %v", err)
	}

	want := [6]float64{0.2, 0, 0, 0, 0.2, 16}
	for i := range want {
		if math.Abs(trans[i]-want[i]) > 1e-9 {
			t.Fatalf("矩阵元素 %d: 期望 %v, 实际 %v", i, want[i], trans[i])
		}
	}

	points := []struct {
		x, y   float32
		wx, wy float32
	}{
		{320, 240, 64, 64},
		{0, 0, 0, 16},
		{640, 480, 128, 112},
	}
	for _, p := range points {
		gx, gy := affinePoint(trans, p.x, p.y)
		if math.Abs(float64(gx-p.wx)) > 1e-4 || math.Abs(float64(gy-p.wy)) > 1e-4 {
			t.Fatalf("点 (%v,%v): 期望 (%v,%v), 实际 (%v,%v)", p.x, p.y, p.wx, p.wy, gx, gy)
		}
	}
}

func TestGetAffineTransform_Rotation(t *testing.T) {
	trans, err := getAffineTransform([2]float64{2, 2}, [2]float64{4, 4}, 90, 4, 4, false)
	if err != nil {
		t.Fatalf("构建仿射变换失败: %v", err)
	}

	// 旋转 90 度后中心不动, 上边中点转到左边中点
	gx, gy := affinePoint(trans, 2, 2)
	if math.Abs(float64(gx-2)) > 1e-6 || math.Abs(float64(gy-2)) > 1e-6 {
		t.Fatalf("中心点应保持不动, 实际 (%v,%v)", gx, gy)
	}
	gx, gy = affinePoint(trans, 2, 0)
	if math.Abs(float64(gx-0)) > 1e-6 || math.Abs(float64(gy-2)) > 1e-6 {
		t.Fatalf("点 (2,0) 应旋转到 (0,2), 实际 (%v,%v)", gx, gy)
	}
}

func TestGetAffineTransform_InverseRoundTrip(t *testing.T) {
	configs := []struct {
		center [2]float64
		scale  [2]float64
		rot    float64
		outW   int
		outH   int
	}{
		{[2]float64{50, 37.5}, [2]float64{100, 100}, 0, 8, 6},
		{[2]float64{320, 240}, [2]float64{640, 640}, 30, 128, 128},
		{[2]float64{5, 5}, [2]float64{10, 20}, 0, 16, 16},
	}
	points := [][2]float32{{0, 0}, {10, 20}, {-5, 33.3}}

	for _, cfg := range configs {
		fwd, err := getAffineTransform(cfg.center, cfg.scale, cfg.rot, cfg.outW, cfg.outH, false)
		if err != nil {
			t.Fatalf("构建正向变换失败: %v", err)
		}
		inv, err := getAffineTransform(cfg.center, cfg.scale, cfg.rot, cfg.outW, cfg.outH, true)
		if err != nil {
			t.Fatalf("构建逆向变换失败: %v", err)
		}

		for _, p := range points {
			fx, fy := affinePoint(fwd, p[0], p[1])
			bx, by := affinePoint(inv, fx, fy)
			if math.Abs(float64(bx-p[0])) > 1e-3 || math.Abs(float64(by-p[1])) > 1e-3 {
				t.Fatalf("往返误差过大: (%v,%v) -> (%v,%v) -> (%v,%v)", p[0], p[1], fx, fy, bx, by)
			}
		}
	}
}

func TestGetAffineTransform_Degenerate(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)

	cases := []struct {
		name   string
		center [2]float64
		scale  [2]float64
		outW   int
		outH   int
	}{
		{"零边长", [2]float64{10, 10}, [2]float64{0, 0}, 8, 8},
		{"负边长", [2]float64{10, 10}, [2]float64{-4, 4}, 8, 8},
		{"NaN边长", [2]float64{10, 10}, [2]float64{nan, 4}, 8, 8},
		{"Inf边长", [2]float64{10, 10}, [2]float64{inf, 4}, 8, 8},
		{"NaN中心", [2]float64{nan, 10}, [2]float64{4, 4}, 8, 8},
		{"零输出宽", [2]float64{10, 10}, [2]float64{4, 4}, 0, 8},
	}

	for _, c := range cases {
		_, err := getAffineTransform(c.center, c.scale, 0, c.outW, c.outH, false)
		if !errors.Is(err, ErrDegenerateTransform) {
			t.Fatalf("%s: 期望 ErrDegenerateTransform, 实际 %v", c.name, err)
		}
	}
}

func TestAffinePoint(t *testing.T) {
	trans := [6]float64{2, 0, 1, 0, 3, -1}
	gx, gy := affinePoint(trans, 1, 1)
	if gx != 3 || gy != 2 {
		t.Fatalf("期望 (3,2), 实际 (%v,%v)", gx, gy)
	}
}
