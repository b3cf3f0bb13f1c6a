//go:build !ncnn

package ncnn

import (
	"fmt"

	"github.com/haivivi/speechprint/pkg/inference"
)

// Available reports whether the binary was built with ncnn.
const Available = false

func init() {
	inference.Register(".param", Default)
}

// Default is the process-wide engine registered for ".param" files.
var Default = &Engine{}

// Engine is the stand-in used when the ncnn build tag is absent.
type Engine struct {
	Threads int
}

// Load always fails: the binary has no ncnn runtime linked in.
func (e *Engine) Load(path string) (inference.Session, error) {
	return nil, fmt.Errorf("%w: %s: ncnn unavailable (build with -tags ncnn)",
		inference.ErrModelLoad, path)
}
