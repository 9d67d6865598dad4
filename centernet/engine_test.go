package centernet

import (
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

func TestResolveOutputs_SortedNames(t *testing.T) {
	infos := []ort.InputOutputInfo{
		{Name: "wh"}, {Name: "reg"}, {Name: "hm"},
	}

	roles, err := resolveOutputs(Config{}, infos)
	if err != nil {
		t.Fatalf("解析输出角色失败: %v", err)
	}
	if roles != [3]string{"hm", "reg", "wh"} {
		t.Fatalf("期望 [hm reg wh], 实际 %v", roles)
	}
}

func TestResolveOutputs_Explicit(t *testing.T) {
	infos := []ort.InputOutputInfo{
		{Name: "out1"}, {Name: "out2"}, {Name: "out3"},
	}

	cfg := Config{HeatmapOutput: "out3", OffsetOutput: "out1", SizeOutput: "out2"}
	roles, err := resolveOutputs(cfg, infos)
	if err != nil {
		t.Fatalf("解析输出角色失败: %v", err)
	}
	if roles != [3]string{"out3", "out1", "out2"} {
		t.Fatalf("期望 [out3 out1 out2], 实际 %v", roles)
	}

	// 只指定部分输出名
	if _, err := resolveOutputs(Config{HeatmapOutput: "out1"}, infos); err == nil {
		t.Fatal("只指定部分输出名应返回错误")
	}

	// 指定了模型中不存在的输出名
	cfg = Config{HeatmapOutput: "nope", OffsetOutput: "out1", SizeOutput: "out2"}
	if _, err := resolveOutputs(cfg, infos); err == nil {
		t.Fatal("不存在的输出名应返回错误")
	}
}

func TestResolveInputSize(t *testing.T) {
	info := ort.InputOutputInfo{Dimensions: ort.NewShape(1, 3, 384, 512)}
	w, h, err := resolveInputSize(info, 0)
	if err != nil {
		t.Fatalf("解析输入尺寸失败: %v", err)
	}
	if w != 512 || h != 384 {
		t.Fatalf("期望 512x384, 实际 %dx%d", w, h)
	}

	// 动态维度回退到配置尺寸
	info = ort.InputOutputInfo{Dimensions: ort.NewShape(-1, 3, -1, -1)}
	w, h, err = resolveInputSize(info, 384)
	if err != nil {
		t.Fatalf("解析输入尺寸失败: %v", err)
	}
	if w != 384 || h != 384 {
		t.Fatalf("期望 384x384, 实际 %dx%d", w, h)
	}

	// 动态维度且未配置 InputSize
	if _, _, err := resolveInputSize(info, 0); err == nil {
		t.Fatal("无法确定输入尺寸时应返回错误")
	}

	// 通道数错误
	info = ort.InputOutputInfo{Dimensions: ort.NewShape(1, 4, 384, 384)}
	if _, _, err := resolveInputSize(info, 384); err == nil {
		t.Fatal("通道数不为 3 时应返回错误")
	}

	// 维度数错误
	info = ort.InputOutputInfo{Dimensions: ort.NewShape(3, 384, 384)}
	if _, _, err := resolveInputSize(info, 384); err == nil {
		t.Fatal("维度数不为 4 时应返回错误")
	}
}
