package vision

import (
	"fmt"
	ort "github.com/yalue/onnxruntime_go"
	"runtime"
	"sync"
)

// OnnxConfig ONNX Runtime 环境配置
type OnnxConfig struct {
	SessionOptions *ort.SessionOptions

	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	// 可选参数
	UseCuda           bool // (可选) 是否启用 CUDA
	NumThreads        int  // (可选) ONNX 线程数, 默认由CPU核心数决定
	EnableCpuMemArena bool // (可选) 是否开启 ONNX 内存池
}

var (
	initErr error
	once    sync.Once
)

// New 初始化 ONNX 环境并构建会话选项
//
// 环境在进程内只初始化一次，后续调用复用首次加载的动态库。
func (cfg *OnnxConfig) New() error {
	if cfg.OnnxRuntimeLibPath == "" {
		return fmt.Errorf("OnnxRuntimeLibPath 不能为空")
	}
	once.Do(func() {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeLibPath)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return fmt.Errorf("初始化 ONNX Runtime 环境失败: %w", initErr)
	}

	// 创建会话选项
	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("创建会话选项失败: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return err
		}
	}
	if cfg.EnableCpuMemArena {
		if err := options.SetCpuMemArena(true); err != nil {
			return err
		}
	}

	// 启用CUDA
	if cfg.UseCuda {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("创建 CUDAProviderOptions 失败: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return fmt.Errorf("添加 CUDA 执行提供者失败: %w", err)
		}
	}
	cfg.SessionOptions = options

	return nil
}

// DefaultLibraryPath 根据运行时环境判断加载哪个库文件
func DefaultLibraryPath() string {
	const baseDir = "./lib/"
	const libName = "onnxruntime"

	switch runtime.GOOS {
	case "windows":
		// windows 统一为 onnxruntime.dll
		return baseDir + libName + ".dll"
	case "darwin":
		return fmt.Sprintf("%s%s_%s.dylib", baseDir, libName, runtime.GOARCH)
	case "linux":
		return fmt.Sprintf("%s%s_%s.so", baseDir, libName, runtime.GOARCH)
	default:
		return baseDir + libName + "_amd64.so" // 默认返回 linux amd64
	}
}
