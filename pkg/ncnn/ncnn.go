//go:build ncnn

package ncnn

/*
#cgo LDFLAGS: -lncnn -lgomp -lstdc++ -lm
#include <ncnn/c_api.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Version returns the ncnn library version string.
func Version() string {
	return C.GoString(C.ncnn_version())
}

// --------------------------------------------------------------------------
// Net
// --------------------------------------------------------------------------

// Net holds a loaded ncnn model. A Net is safe for concurrent use by
// multiple Extractors.
type Net struct {
	net C.ncnn_net_t

	// ncnn may reference weights in place, so they live in C memory
	// until Close.
	weights unsafe.Pointer
}

// NewNetFromMemory loads a model from the text content of a .param file and
// the raw bytes of its .bin file. opts are applied before loading, which is
// the only point ncnn honours them.
func NewNetFromMemory(paramData, binData []byte, opts ...*Option) (*Net, error) {
	if len(paramData) == 0 {
		return nil, fmt.Errorf("ncnn: empty param data")
	}
	if len(binData) == 0 {
		return nil, fmt.Errorf("ncnn: empty bin data")
	}

	n := &Net{net: C.ncnn_net_create()}
	if n.net == nil {
		return nil, fmt.Errorf("ncnn: net_create failed")
	}
	for _, opt := range opts {
		if opt != nil {
			C.ncnn_net_set_option(n.net, opt.opt)
		}
	}

	cParam := C.CString(string(paramData))
	defer C.free(unsafe.Pointer(cParam))
	if ret := C.ncnn_net_load_param_memory(n.net, cParam); ret != 0 {
		C.ncnn_net_destroy(n.net)
		return nil, fmt.Errorf("ncnn: load_param_memory: %d", ret)
	}

	// Returns bytes consumed (>= 0) on success.
	n.weights = C.CBytes(binData)
	if ret := C.ncnn_net_load_model_memory(n.net, (*C.uchar)(n.weights)); ret < 0 {
		C.ncnn_net_destroy(n.net)
		C.free(n.weights)
		return nil, fmt.Errorf("ncnn: load_model_memory: %d", ret)
	}

	runtime.SetFinalizer(n, (*Net).Close)
	return n, nil
}

// NewExtractor creates a new inference session for this Net.
// The Extractor must be closed after use.
func (n *Net) NewExtractor() (*Extractor, error) {
	if n.net == nil {
		return nil, fmt.Errorf("ncnn: net is closed")
	}
	ex := C.ncnn_extractor_create(n.net)
	if ex == nil {
		return nil, fmt.Errorf("ncnn: extractor_create failed")
	}
	e := &Extractor{ex: ex}
	runtime.SetFinalizer(e, (*Extractor).Close)
	return e, nil
}

// Close releases the ncnn network resources.
func (n *Net) Close() error {
	if n.net != nil {
		C.ncnn_net_destroy(n.net)
		n.net = nil
		C.free(n.weights)
		n.weights = nil
		runtime.SetFinalizer(n, nil)
	}
	return nil
}

// Option configures inference behavior for a Net.
type Option struct {
	opt C.ncnn_option_t
}

// NewOption creates a new Option with default settings.
// Returns nil if allocation fails.
func NewOption() *Option {
	opt := C.ncnn_option_create()
	if opt == nil {
		return nil
	}
	o := &Option{opt: opt}
	runtime.SetFinalizer(o, (*Option).Close)
	return o
}

// SetFP16 enables or disables FP16 storage and arithmetic.
// Keep it off for recurrent models: LSTM state overflows half precision.
func (o *Option) SetFP16(enabled bool) *Option {
	v := C.int(0)
	if enabled {
		v = 1
	}
	C.ncnn_option_set_use_fp16_packed(o.opt, v)
	C.ncnn_option_set_use_fp16_storage(o.opt, v)
	C.ncnn_option_set_use_fp16_arithmetic(o.opt, v)
	return o
}

// SetNumThreads sets the number of CPU threads for inference.
func (o *Option) SetNumThreads(n int) *Option {
	C.ncnn_option_set_num_threads(o.opt, C.int(n))
	return o
}

// Close releases the option resources.
func (o *Option) Close() error {
	if o.opt != nil {
		C.ncnn_option_destroy(o.opt)
		o.opt = nil
		runtime.SetFinalizer(o, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Extractor
// --------------------------------------------------------------------------

// Extractor runs inference on a loaded Net. An Extractor must be used from
// a single goroutine.
type Extractor struct {
	ex C.ncnn_extractor_t
}

// SetInput feeds a Mat as input to the named blob.
func (e *Extractor) SetInput(name string, mat *Mat) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	if ret := C.ncnn_extractor_input(e.ex, cName, mat.mat); ret != 0 {
		return fmt.Errorf("ncnn: extractor_input %q: %d", name, ret)
	}
	return nil
}

// Extract runs inference up to the named blob and returns it.
// The caller must close the returned Mat.
func (e *Extractor) Extract(name string) (*Mat, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var m C.ncnn_mat_t
	if ret := C.ncnn_extractor_extract(e.ex, cName, &m); ret != 0 {
		return nil, fmt.Errorf("ncnn: extractor_extract %q: %d", name, ret)
	}
	mat := &Mat{mat: m}
	runtime.SetFinalizer(mat, (*Mat).Close)
	return mat, nil
}

// Close releases the extractor resources.
func (e *Extractor) Close() error {
	if e.ex != nil {
		C.ncnn_extractor_destroy(e.ex)
		e.ex = nil
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Mat
// --------------------------------------------------------------------------

// Mat is an ncnn-owned tensor of one to three dimensions.
type Mat struct {
	mat C.ncnn_mat_t
}

// NewMat allocates a Mat of the given ncnn dimensions (w, then h, then c)
// and copies data into it. len(data) must equal the product of dims.
func NewMat(data []float32, dims ...int) (*Mat, error) {
	size := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("ncnn: invalid mat dims %v", dims)
		}
		size *= d
	}
	if len(dims) == 0 || len(dims) > 3 {
		return nil, fmt.Errorf("ncnn: mat needs 1 to 3 dims, got %d", len(dims))
	}
	if len(data) != size {
		return nil, fmt.Errorf("ncnn: mat data has %d values, dims %v need %d", len(data), dims, size)
	}

	var mat C.ncnn_mat_t
	switch len(dims) {
	case 1:
		mat = C.ncnn_mat_create_1d(C.int(dims[0]), nil)
	case 2:
		mat = C.ncnn_mat_create_2d(C.int(dims[0]), C.int(dims[1]), nil)
	case 3:
		mat = C.ncnn_mat_create_3d(C.int(dims[0]), C.int(dims[1]), C.int(dims[2]), nil)
	}
	if mat == nil {
		return nil, fmt.Errorf("ncnn: mat_create failed")
	}
	m := &Mat{mat: mat}
	runtime.SetFinalizer(m, (*Mat).Close)

	// Channels of a 3D mat are aligned, so each one is copied separately.
	plane := size / m.C()
	for c := 0; c < m.C(); c++ {
		dst := C.ncnn_mat_get_channel_data(m.mat, C.int(c))
		C.memcpy(dst, unsafe.Pointer(&data[c*plane]), C.size_t(plane*4))
	}
	return m, nil
}

// Dims returns the number of dimensions of the Mat.
func (m *Mat) Dims() int { return int(C.ncnn_mat_get_dims(m.mat)) }

// W returns the width (innermost dimension) of the Mat.
func (m *Mat) W() int { return int(C.ncnn_mat_get_w(m.mat)) }

// H returns the height of the Mat; 1 for a 1D Mat.
func (m *Mat) H() int { return int(C.ncnn_mat_get_h(m.mat)) }

// C returns the number of channels of the Mat; 1 below three dimensions.
func (m *Mat) C() int { return int(C.ncnn_mat_get_c(m.mat)) }

// FloatData copies the Mat data into a new row-major float32 slice of
// length W * H * C.
func (m *Mat) FloatData() []float32 {
	plane := m.W() * m.H()
	if plane <= 0 || m.C() <= 0 {
		return nil
	}
	out := make([]float32, plane*m.C())
	for c := 0; c < m.C(); c++ {
		src := C.ncnn_mat_get_channel_data(m.mat, C.int(c))
		if src == nil {
			return nil
		}
		C.memcpy(unsafe.Pointer(&out[c*plane]), src, C.size_t(plane*4))
	}
	return out
}

// Close releases the Mat resources.
func (m *Mat) Close() error {
	if m.mat != nil {
		C.ncnn_mat_destroy(m.mat)
		m.mat = nil
		runtime.SetFinalizer(m, nil)
	}
	return nil
}
