package fractal

import (
	"errors"
	"fmt"
)

// Setup errors. They are only returned while a pipeline is being created
// and leave nothing usable behind.
var (
	ErrNoPlatform           = errors.New("no OpenCL platform found")
	ErrNoGPUDevice          = errors.New("no GPU device found on any platform")
	ErrUnsupportedPrecision = errors.New("device does not support double precision (cl_khr_fp64)")
	ErrEntryPointNotFound   = errors.New("kernel entry point not found")
)

var (
	// ErrExecution matches every *ExecutionError.
	ErrExecution = errors.New("GPU execution failed")

	ErrInvalidRequest = errors.New("invalid compute request")
)

// CompileError carries the build log of a kernel that failed to compile.
type CompileError struct {
	Log string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("kernel compilation failed: %s", e.Log)
}

// ExecutionError is a failed dispatch or readback. It only affects the frame
// that produced it; the pipeline remains usable.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExecution, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// IsSetupError reports whether err happened while creating a pipeline.
func IsSetupError(err error) bool {
	var compileErr *CompileError
	return errors.Is(err, ErrNoPlatform) ||
		errors.Is(err, ErrNoGPUDevice) ||
		errors.Is(err, ErrUnsupportedPrecision) ||
		errors.Is(err, ErrEntryPointNotFound) ||
		errors.As(err, &compileErr)
}
