// Package ncnn provides Go bindings for the ncnn neural network inference
// framework and registers them as the speechprint inference engine for
// ".param" model files.
//
// An ncnn model is a text graph (.param) plus a weight blob (.bin) stored
// next to it under the same base name:
//
//	import _ "github.com/haivivi/speechprint/pkg/ncnn"
//
//	sess, _ := inference.Load("models/eres2net.param") // reads eres2net.bin
//	defer sess.Close()
//
// # Tensor Layout
//
// ncnn mats carry no batch axis. A leading axis of size one is taken as the
// batch and dropped, further leading ones are dropped until at most three
// axes remain, and the rest map to ncnn as [w], [h, w] or [c, h, w]. Only
// float32 tensors are accepted. Outputs come back row-major with their ncnn
// rank and no batch axis.
//
// # Build Tags
//
// ncnn is statically linked via CGo and is only compiled in with the ncnn
// build tag:
//
//	go build -tags ncnn ./...
//
// Without the tag a stub engine is registered instead and every load fails
// with [inference.ErrModelLoad].
//
// # Thread Safety
//
// Net is safe for concurrent use by multiple Extractors. Each Extractor must
// be used from a single goroutine; the engine creates one per Run.
package ncnn
