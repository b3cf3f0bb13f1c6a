//go:build ncnn

package ncnn

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/tensor"
)

// Available reports whether the binary was built with ncnn.
const Available = true

func init() {
	inference.Register(".param", Default)
}

// Default is the process-wide engine registered for ".param" files.
var Default = &Engine{}

// Engine loads .param/.bin pairs into [inference.Session] adapters.
type Engine struct {
	// Threads is the CPU thread count per net; 0 lets ncnn decide.
	Threads int
}

// Load implements [inference.Loader]. path names the .param graph; the
// weights are read from the .bin file beside it. FP16 is disabled before
// loading. The returned session is [inference.Serialized].
func (e *Engine) Load(path string) (inference.Session, error) {
	paramData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrModelLoad, err)
	}
	binPath := weightsPath(path)
	binData, err := os.ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: weights: %v", inference.ErrModelLoad, path, err)
	}

	opt := NewOption()
	if opt == nil {
		return nil, fmt.Errorf("%w: %s: option_create failed", inference.ErrModelLoad, path)
	}
	defer opt.Close()
	opt.SetFP16(false)
	if e.Threads > 0 {
		opt.SetNumThreads(e.Threads)
	}

	net, err := NewNetFromMemory(paramData, binData, opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", inference.ErrModelLoad, path, err)
	}
	return inference.Serialized(&session{net: net}), nil
}

func weightsPath(paramPath string) string {
	return strings.TrimSuffix(paramPath, filepath.Ext(paramPath)) + ".bin"
}

// session adapts *Net to inference.Session. Each Run uses a fresh Extractor.
type session struct {
	net *Net
}

func (s *session) Run(inputs map[string]*tensor.Tensor, outputs []string) (map[string]*tensor.Tensor, error) {
	names := make([]string, 0, len(inputs))
	for name, t := range inputs {
		if t == nil {
			return nil, fmt.Errorf("%w: input %q is nil", inference.ErrInference, name)
		}
		if t.DType() != tensor.Float32 {
			return nil, fmt.Errorf("%w: input %q: ncnn takes float32 tensors, got %s",
				inference.ErrInference, name, t.DType())
		}
		names = append(names, name)
	}
	sort.Strings(names)

	mats := make([]*Mat, 0, len(names))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for _, name := range names {
		m, err := toMat(inputs[name])
		if err != nil {
			return nil, fmt.Errorf("%w: input %q: %v", inference.ErrInference, name, err)
		}
		mats = append(mats, m)
	}

	ex, err := s.net.NewExtractor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	defer ex.Close()
	for i, name := range names {
		if err := ex.SetInput(name, mats[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
		}
	}

	result := make(map[string]*tensor.Tensor, len(outputs))
	for _, name := range outputs {
		m, err := ex.Extract(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
		}
		t, err := fromMat(m)
		m.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: output %q: %v", inference.ErrInference, name, err)
		}
		result[name] = t
	}
	return result, nil
}

func (s *session) Close() error {
	return s.net.Close()
}

// matDims maps a row-major tensor shape to ncnn dims (w first).
func matDims(shape tensor.Shape) ([]int, error) {
	dims := []int64(shape)
	if len(dims) > 1 && dims[0] == 1 {
		dims = dims[1:]
	}
	for len(dims) > 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) == 0 || len(dims) > 3 {
		return nil, fmt.Errorf("shape %s does not fit an ncnn mat", shape)
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		out[len(dims)-1-i] = int(d)
	}
	return out, nil
}

func toMat(t *tensor.Tensor) (*Mat, error) {
	dims, err := matDims(t.Shape())
	if err != nil {
		return nil, err
	}
	data, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	return NewMat(data, dims...)
}

func fromMat(m *Mat) (*tensor.Tensor, error) {
	var shape tensor.Shape
	switch m.Dims() {
	case 1:
		shape = tensor.Shape{int64(m.W())}
	case 2:
		shape = tensor.Shape{int64(m.H()), int64(m.W())}
	case 3:
		shape = tensor.Shape{int64(m.C()), int64(m.H()), int64(m.W())}
	default:
		return nil, fmt.Errorf("unsupported mat dims %d", m.Dims())
	}
	data := m.FloatData()
	if data == nil {
		return nil, fmt.Errorf("mat has no data")
	}
	return tensor.NewFloat32(shape, data)
}
