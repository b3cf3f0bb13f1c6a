// Package onnx provides Go bindings for the ONNX Runtime C API and registers
// them as the speechprint inference engine for ".onnx" model files.
//
// # Architecture
//
// The package exposes three core types:
//
//   - [Env]: global environment (one per process)
//   - [Session]: loads and holds a model (.onnx file)
//   - [Value]: ORT-owned tensor for input/output data
//
// and an [Engine] adapting them to [inference.Session]:
//
//	import _ "github.com/haivivi/speechprint/pkg/onnx"
//
//	sess, _ := inference.Load("silero_vad.onnx")
//	defer sess.Close()
//
// # Build Tags
//
// ONNX Runtime is dynamically linked (.dylib/.so) via CGo and is only
// compiled in with the onnxruntime build tag:
//
//	go build -tags onnxruntime ./...
//
// The header onnxruntime_c_api.h must be on the include path (CGO_CFLAGS)
// and libonnxruntime on the library path. Without the tag a stub engine is
// registered instead and every load fails with [inference.ErrModelLoad].
//
// # Thread Safety
//
// Env is safe for concurrent use. Session.Run is thread-safe
// (ONNX Runtime uses internal locking).
package onnx
