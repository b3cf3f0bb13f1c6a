//go:build onnxruntime

package onnx

/*
#cgo LDFLAGS: -lonnxruntime
#include <onnxruntime_c_api.h>
#include <stdlib.h>
#include <string.h>

static const OrtApi* ort_api() {
    return OrtGetApiBase()->GetApi(ORT_API_VERSION);
}

static OrtStatus* ort_create_env(const OrtApi* api, const char* name, OrtEnv** out) {
    return api->CreateEnv(ORT_LOGGING_LEVEL_WARNING, name, out);
}

static OrtStatus* ort_create_session_options(const OrtApi* api, int threads, OrtSessionOptions** out) {
    OrtStatus* status = api->CreateSessionOptions(out);
    if (status) return status;
    if (threads > 0) {
        status = api->SetIntraOpNumThreads(*out, threads);
        if (status) return status;
    }
    return api->SetSessionGraphOptimizationLevel(*out, ORT_ENABLE_ALL);
}

static OrtStatus* ort_create_session(const OrtApi* api, OrtEnv* env,
    const char* path, OrtSessionOptions* opts, OrtSession** out) {
    return api->CreateSession(env, path, opts, out);
}

// Tensors are allocated by ORT and filled by copy so no Go memory is
// retained by C.
static OrtStatus* ort_create_tensor(const OrtApi* api, const int64_t* shape, size_t shape_len,
    ONNXTensorElementDataType dtype, const void* data, size_t data_bytes, OrtValue** out) {
    OrtAllocator* alloc;
    OrtStatus* status = api->GetAllocatorWithDefaultOptions(&alloc);
    if (status) return status;
    status = api->CreateTensorAsOrtValue(alloc, shape, shape_len, dtype, out);
    if (status) return status;
    if (data_bytes == 0) return NULL;
    void* dst;
    status = api->GetTensorMutableData(*out, &dst);
    if (status) return status;
    memcpy(dst, data, data_bytes);
    return NULL;
}

static OrtStatus* ort_run(const OrtApi* api, OrtSession* session,
    const char** input_names, const OrtValue* const* inputs, size_t num_inputs,
    const char** output_names, size_t num_outputs, OrtValue** outputs) {
    return api->Run(session, NULL, input_names, inputs, num_inputs,
        output_names, num_outputs, outputs);
}

static OrtStatus* ort_tensor_data(const OrtApi* api, OrtValue* value, void** out) {
    return api->GetTensorMutableData(value, out);
}

static OrtStatus* ort_tensor_info(const OrtApi* api, OrtValue* value,
    ONNXTensorElementDataType* dtype, size_t* ndim) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetTensorElementType(info, dtype);
    if (!status) status = api->GetDimensionsCount(info, ndim);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

static OrtStatus* ort_tensor_shape(const OrtApi* api, OrtValue* value,
    int64_t* shape, size_t shape_len) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensions(info, shape, shape_len);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

static const char* ort_error_message(const OrtApi* api, OrtStatus* status) {
    return api->GetErrorMessage(status);
}

static void ort_release_status(const OrtApi* api, OrtStatus* status) { api->ReleaseStatus(status); }
static void ort_release_env(const OrtApi* api, OrtEnv* env) { api->ReleaseEnv(env); }
static void ort_release_session(const OrtApi* api, OrtSession* s) { api->ReleaseSession(s); }
static void ort_release_session_options(const OrtApi* api, OrtSessionOptions* o) { api->ReleaseSessionOptions(o); }
static void ort_release_value(const OrtApi* api, OrtValue* v) { api->ReleaseValue(v); }
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"
)

const (
	elemFloat32 = C.ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT
	elemInt64   = C.ONNX_TENSOR_ELEMENT_DATA_TYPE_INT64
)

func api() *C.OrtApi {
	return C.ort_api()
}

// checkStatus converts an OrtStatus to a Go error.
func checkStatus(status *C.OrtStatus) error {
	if status == nil {
		return nil
	}
	msg := C.GoString(C.ort_error_message(api(), status))
	C.ort_release_status(api(), status)
	return fmt.Errorf("onnx: %s", msg)
}

// --------------------------------------------------------------------------
// Env
// --------------------------------------------------------------------------

// Env is the ONNX Runtime environment. Create one per process.
type Env struct {
	env     *C.OrtEnv
	threads int
}

// NewEnv creates a new ONNX Runtime environment. threads sets the intra-op
// thread count of sessions created from it; 0 lets ORT decide.
func NewEnv(name string, threads int) (*Env, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var env *C.OrtEnv
	if err := checkStatus(C.ort_create_env(api(), cName, &env)); err != nil {
		return nil, err
	}

	e := &Env{env: env, threads: threads}
	runtime.SetFinalizer(e, (*Env).Close)
	return e, nil
}

// Open creates a session from an .onnx file on disk.
func (e *Env) Open(path string) (*Session, error) {
	var opts *C.OrtSessionOptions
	if err := checkStatus(C.ort_create_session_options(api(), C.int(e.threads), &opts)); err != nil {
		return nil, err
	}
	defer C.ort_release_session_options(api(), opts)

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var session *C.OrtSession
	if err := checkStatus(C.ort_create_session(api(), e.env, cPath, opts, &session)); err != nil {
		return nil, err
	}
	s := &Session{session: session}
	runtime.SetFinalizer(s, (*Session).Close)
	return s, nil
}

// Close releases the environment.
func (e *Env) Close() error {
	if e.env != nil {
		C.ort_release_env(api(), e.env)
		e.env = nil
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session holds a loaded ONNX model.
type Session struct {
	session *C.OrtSession
}

// Run executes inference with the given inputs and output names.
// The caller must close each output tensor.
func (s *Session) Run(inputNames []string, inputs []*Value, outputNames []string) ([]*Value, error) {
	if s.session == nil {
		return nil, fmt.Errorf("onnx: session is closed")
	}
	if len(inputNames) != len(inputs) {
		return nil, fmt.Errorf("onnx: input names/tensors length mismatch: %d vs %d", len(inputNames), len(inputs))
	}
	if len(inputs) == 0 || len(outputNames) == 0 {
		return nil, fmt.Errorf("onnx: run needs at least one input and one output")
	}

	// Name arrays live in C memory; cgo forbids passing Go pointers to Go pointers.
	cInputNames := (**C.char)(C.malloc(C.size_t(len(inputNames)) * C.size_t(unsafe.Sizeof(uintptr(0)))))
	defer C.free(unsafe.Pointer(cInputNames))
	inNames := unsafe.Slice(cInputNames, len(inputNames))
	for i, name := range inputNames {
		inNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(inNames[i]))
	}

	cInputs := (**C.OrtValue)(C.malloc(C.size_t(len(inputs)) * C.size_t(unsafe.Sizeof(uintptr(0)))))
	defer C.free(unsafe.Pointer(cInputs))
	inVals := unsafe.Slice(cInputs, len(inputs))
	for i, v := range inputs {
		inVals[i] = v.value
	}

	cOutputNames := (**C.char)(C.malloc(C.size_t(len(outputNames)) * C.size_t(unsafe.Sizeof(uintptr(0)))))
	defer C.free(unsafe.Pointer(cOutputNames))
	outNames := unsafe.Slice(cOutputNames, len(outputNames))
	for i, name := range outputNames {
		outNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(outNames[i]))
	}

	cOutputs := (**C.OrtValue)(C.calloc(C.size_t(len(outputNames)), C.size_t(unsafe.Sizeof(uintptr(0)))))
	defer C.free(unsafe.Pointer(cOutputs))

	status := C.ort_run(api(), s.session,
		cInputNames, cInputs, C.size_t(len(inputs)),
		cOutputNames, C.size_t(len(outputNames)), cOutputs,
	)
	if err := checkStatus(status); err != nil {
		return nil, err
	}

	outVals := unsafe.Slice(cOutputs, len(outputNames))
	outputs := make([]*Value, len(outputNames))
	for i, val := range outVals {
		outputs[i] = &Value{value: val}
		runtime.SetFinalizer(outputs[i], (*Value).Close)
	}
	return outputs, nil
}

// Close releases the session.
func (s *Session) Close() error {
	if s.session != nil {
		C.ort_release_session(api(), s.session)
		s.session = nil
		runtime.SetFinalizer(s, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// Value is an ORT-owned tensor (OrtValue).
type Value struct {
	value *C.OrtValue
}

// NewFloat32Value creates a float32 tensor holding a copy of data.
func NewFloat32Value(shape []int64, data []float32) (*Value, error) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	return newValue(shape, elemFloat32, ptr, len(data)*4)
}

// NewInt64Value creates an int64 tensor holding a copy of data.
func NewInt64Value(shape []int64, data []int64) (*Value, error) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	return newValue(shape, elemInt64, ptr, len(data)*8)
}

func newValue(shape []int64, dtype C.ONNXTensorElementDataType, data unsafe.Pointer, nbytes int) (*Value, error) {
	total := int64(1)
	for _, d := range shape {
		total *= d
	}
	elem := int64(4)
	if dtype == elemInt64 {
		elem = 8
	}
	if total*elem != int64(nbytes) {
		return nil, fmt.Errorf("onnx: tensor data length %d bytes does not match shape %v", nbytes, shape)
	}

	var cShape *C.int64_t
	if len(shape) > 0 {
		cShape = (*C.int64_t)(unsafe.Pointer(&shape[0]))
	}

	var value *C.OrtValue
	if err := checkStatus(C.ort_create_tensor(api(), cShape, C.size_t(len(shape)),
		dtype, data, C.size_t(nbytes), &value)); err != nil {
		return nil, err
	}
	v := &Value{value: value}
	runtime.SetFinalizer(v, (*Value).Close)
	return v, nil
}

// info returns the element type and dimensions.
func (v *Value) info() (C.ONNXTensorElementDataType, []int64, error) {
	var dtype C.ONNXTensorElementDataType
	var ndim C.size_t
	if err := checkStatus(C.ort_tensor_info(api(), v.value, &dtype, &ndim)); err != nil {
		return 0, nil, err
	}
	shape := make([]int64, int(ndim))
	if ndim > 0 {
		if err := checkStatus(C.ort_tensor_shape(api(), v.value,
			(*C.int64_t)(unsafe.Pointer(&shape[0])), ndim)); err != nil {
			return 0, nil, err
		}
	}
	return dtype, shape, nil
}

// Shape returns the tensor dimensions.
func (v *Value) Shape() ([]int64, error) {
	_, shape, err := v.info()
	return shape, err
}

// FloatData copies the tensor data into a new float32 slice.
func (v *Value) FloatData() ([]float32, error) {
	dtype, shape, err := v.info()
	if err != nil {
		return nil, err
	}
	if dtype != elemFloat32 {
		return nil, fmt.Errorf("onnx: tensor element type %d is not float32", int(dtype))
	}
	total := 1
	for _, d := range shape {
		total *= int(d)
	}
	if total <= 0 {
		return []float32{}, nil
	}

	var ptr unsafe.Pointer
	if err := checkStatus(C.ort_tensor_data(api(), v.value, &ptr)); err != nil {
		return nil, err
	}
	out := make([]float32, total)
	C.memcpy(unsafe.Pointer(&out[0]), ptr, C.size_t(total*4))
	return out, nil
}

// Close releases the tensor.
func (v *Value) Close() error {
	if v.value != nil {
		C.ort_release_value(api(), v.value)
		v.value = nil
		runtime.SetFinalizer(v, nil)
	}
	return nil
}
