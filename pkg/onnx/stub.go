//go:build !onnxruntime

package onnx

import (
	"fmt"

	"github.com/haivivi/speechprint/pkg/inference"
)

// Available reports whether the binary was built with ONNX Runtime.
const Available = false

func init() {
	inference.Register(".onnx", Default)
}

// Default is the process-wide engine registered for ".onnx" files.
var Default = &Engine{}

// Engine is the stand-in used when the onnxruntime build tag is absent.
type Engine struct {
	Name    string
	Threads int
}

// Load always fails: the binary has no inference runtime linked in.
func (e *Engine) Load(path string) (inference.Session, error) {
	return nil, fmt.Errorf("%w: %s: onnx runtime unavailable (build with -tags onnxruntime)",
		inference.ErrModelLoad, path)
}
