package paddle

import (
	"fmt"
	"os"
	"runtime"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// createSession initializes the ONNX runtime and opens a dynamic session
// for the recognition model.
func createSession(cfg Config) (*onnxrt.DynamicAdvancedSession, error) {
	if err := setLibraryPath(); err != nil {
		return nil, err
	}

	if !onnxrt.IsInitialized() {
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnx: %w", err)
		}
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() { _ = opts.Destroy() }()

	if cfg.NumThreads > 0 {
		_ = opts.SetIntraOpNumThreads(cfg.NumThreads)
	}

	sess, err := onnxrt.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return sess, nil
}

func setLibraryPath() error {
	if path := os.Getenv("ONNXRUNTIME_LIB_PATH"); path != "" {
		onnxrt.SetSharedLibraryPath(path)
		return nil
	}

	libName, err := libraryName()
	if err != nil {
		return err
	}

	systemPaths := []string{
		"/usr/local/lib/" + libName,
		"/usr/lib/" + libName,
		"/opt/onnxruntime/cpu/lib/" + libName,
	}
	for _, path := range systemPaths {
		if _, err := os.Stat(path); err == nil {
			onnxrt.SetSharedLibraryPath(path)
			return nil
		}
	}
	return fmt.Errorf("ONNX Runtime library %s not found", libName)
}

func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}
