// Package compute runs the fractal kernel on an OpenCL GPU device.
package compute

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"go.uber.org/zap"

	"mandelview/internal/fractal"
)

const doubleExtension = "cl_khr_fp64"

var errReleased = errors.New("pipeline released")

// Pipeline exclusively owns every OpenCL handle it creates. Handles are
// acquired once in New and released together by Release.
type Pipeline struct {
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	// Reused while the image size stays the same
	buffer     *cl.MemObject
	bufferSize int

	deviceName string

	source       string
	entryPoint   string
	buildOptions string
	profiling    bool
	logger       *zap.Logger
}

var _ fractal.Pipeline = (*Pipeline)(nil)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithKernelSource replaces the compiled kernel. The replacement must keep
// the argument list of fractal.KernelSource.
func WithKernelSource(source string) Option {
	return func(p *Pipeline) {
		p.source = source
	}
}

// WithEntryPoint sets the kernel function to extract from the program.
func WithEntryPoint(name string) Option {
	return func(p *Pipeline) {
		p.entryPoint = name
	}
}

// WithBuildOptions passes compiler options to the program build.
func WithBuildOptions(options string) Option {
	return func(p *Pipeline) {
		p.buildOptions = options
	}
}

// WithProfiling enables profiling on the command queue.
func WithProfiling() Option {
	return func(p *Pipeline) {
		p.profiling = true
	}
}

// New selects the first GPU device, creates a context and queue on it and
// compiles the kernel. It never falls back to a CPU device.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		source:     fractal.KernelSource,
		entryPoint: fractal.KernelEntryPoint,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("%w: querying platforms: %v", fractal.ErrNoPlatform, err)
	}
	if len(platforms) == 0 {
		return nil, fractal.ErrNoPlatform
	}

	device, err := selectDevice(platforms)
	if err != nil {
		return nil, err
	}
	p.deviceName = device.Name()

	if !hasDoubleSupport(device.Extensions()) {
		return nil, fmt.Errorf("%w: %s", fractal.ErrUnsupportedPrecision, p.deviceName)
	}

	if err := p.init(device); err != nil {
		p.Release()
		return nil, err
	}

	p.logger.Info("compute pipeline ready",
		zap.String("device", p.deviceName),
		zap.String("entry_point", p.entryPoint),
		zap.Bool("profiling", p.profiling),
	)
	return p, nil
}

func (p *Pipeline) init(device *cl.Device) error {
	var err error
	p.context, err = cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}

	var props cl.CommandQueueProperty
	if p.profiling {
		props = cl.CommandQueueProfilingEnable
	}
	p.queue, err = p.context.CreateCommandQueue(device, props)
	if err != nil {
		return fmt.Errorf("creating command queue: %w", err)
	}

	p.program, err = p.context.CreateProgramWithSource([]string{p.source})
	if err != nil {
		return fmt.Errorf("creating program: %w", err)
	}
	if err := p.program.BuildProgram([]*cl.Device{device}, p.buildOptions); err != nil {
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return &fractal.CompileError{Log: strings.TrimSpace(string(buildErr))}
		}
		return &fractal.CompileError{Log: err.Error()}
	}

	p.kernel, err = p.program.CreateKernel(p.entryPoint)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", fractal.ErrEntryPointNotFound, p.entryPoint, err)
	}
	return nil
}

// selectDevice returns the first GPU of the first platform exposing one.
func selectDevice(platforms []*cl.Platform) (*cl.Device, error) {
	for _, platform := range platforms {
		devices, err := platform.GetDevices(cl.DeviceTypeGPU)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}
	return nil, fractal.ErrNoGPUDevice
}

func hasDoubleSupport(extensions string) bool {
	for _, ext := range strings.Fields(extensions) {
		if ext == doubleExtension {
			return true
		}
	}
	return false
}

// Device returns the name of the selected GPU.
func (p *Pipeline) Device() string {
	return p.deviceName
}

// Render dispatches one work-item per pixel and blocks until the image has
// been read back into a new host buffer. Failures are returned as
// *fractal.ExecutionError and leave the pipeline usable.
func (p *Pipeline) Render(req fractal.ComputeRequest) (fractal.PixelBuffer, error) {
	if err := req.Validate(); err != nil {
		return fractal.PixelBuffer{}, err
	}
	if p.kernel == nil {
		return fractal.PixelBuffer{}, &fractal.ExecutionError{Op: "render", Err: errReleased}
	}

	size := req.BufferSize()
	if err := p.ensureBuffer(size); err != nil {
		return fractal.PixelBuffer{}, &fractal.ExecutionError{Op: "allocate buffer", Err: err}
	}
	if err := p.bindArgs(req); err != nil {
		return fractal.PixelBuffer{}, &fractal.ExecutionError{Op: "set kernel arguments", Err: err}
	}

	global := []int{int(req.Width), int(req.Height)}
	event, err := p.queue.EnqueueNDRangeKernel(p.kernel, nil, global, nil, nil)
	if err != nil {
		return fractal.PixelBuffer{}, &fractal.ExecutionError{Op: "enqueue kernel", Err: err}
	}
	releaseEvent(event)

	if err := p.queue.Finish(); err != nil {
		return fractal.PixelBuffer{}, &fractal.ExecutionError{Op: "finish queue", Err: err}
	}

	out := fractal.NewPixelBuffer(int(req.Width), int(req.Height))
	event, err = p.queue.EnqueueReadBuffer(p.buffer, true, 0, size, unsafe.Pointer(&out.Pix[0]), nil)
	if err != nil {
		return fractal.PixelBuffer{}, &fractal.ExecutionError{Op: "read buffer", Err: err}
	}
	releaseEvent(event)

	return out, nil
}

func (p *Pipeline) ensureBuffer(size int) error {
	if p.buffer != nil && p.bufferSize == size {
		return nil
	}
	if p.buffer != nil {
		p.buffer.Release()
		p.buffer = nil
		p.bufferSize = 0
	}

	buffer, err := p.context.CreateEmptyBuffer(cl.MemWriteOnly, size)
	if err != nil {
		return err
	}
	p.buffer = buffer
	p.bufferSize = size
	p.logger.Debug("allocated device buffer", zap.Int("bytes", size))
	return nil
}

// bindArgs sets the kernel arguments in the order of its signature.
func (p *Pipeline) bindArgs(req fractal.ComputeRequest) error {
	if err := p.kernel.SetArgBuffer(0, p.buffer); err != nil {
		return fmt.Errorf("arg 0: %w", err)
	}
	for i, v := range []float64{req.CenterX, req.CenterY, req.ScaleX, req.ScaleY} {
		if err := setArgFloat64(p.kernel, i+1, v); err != nil {
			return fmt.Errorf("arg %d: %w", i+1, err)
		}
	}
	for i, v := range []uint32{req.MaxIterations, req.Width, req.Height} {
		if err := p.kernel.SetArgUint32(i+5, v); err != nil {
			return fmt.Errorf("arg %d: %w", i+5, err)
		}
	}
	return nil
}

func setArgFloat64(kernel *cl.Kernel, index int, v float64) error {
	return kernel.SetArgUnsafe(index, int(unsafe.Sizeof(v)), unsafe.Pointer(&v))
}

func releaseEvent(event *cl.Event) {
	if event != nil {
		event.Release()
	}
}

// Release frees all handles, dependents before the context. It is safe to
// call more than once.
func (p *Pipeline) Release() {
	if p.buffer != nil {
		p.buffer.Release()
		p.buffer = nil
		p.bufferSize = 0
	}
	if p.kernel != nil {
		p.kernel.Release()
		p.kernel = nil
	}
	if p.program != nil {
		p.program.Release()
		p.program = nil
	}
	if p.queue != nil {
		p.queue.Release()
		p.queue = nil
	}
	if p.context != nil {
		p.context.Release()
		p.context = nil
	}
}
