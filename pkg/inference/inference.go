// Package inference defines the narrow contract between speechprint and a
// neural inference engine.
//
// A [Session] wraps one loaded model graph and executes it on named input
// tensors, returning named output tensors. Engines register a [Loader] for a
// model file extension, similar to database/sql drivers:
//
//	import _ "github.com/haivivi/speechprint/pkg/onnx"
//
//	sess, err := inference.Load("models/silero_vad.onnx")
//
// The detector and embedding packages depend only on this package, never on a
// concrete engine.
package inference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/haivivi/speechprint/pkg/tensor"
)

var (
	// ErrModelLoad reports a model that could not be loaded: missing file,
	// unknown format or an engine rejection.
	ErrModelLoad = errors.New("inference: model load failed")

	// ErrInference reports a failed graph execution, a missing output tensor
	// or an output that could not be extracted.
	ErrInference = errors.New("inference: run failed")
)

// Session is a loaded model graph.
//
// Run executes the graph. inputs maps input names to tensors; outputs lists
// the output names to fetch. Implementations return an error wrapping
// [ErrInference] on failure. A Session holds no per-call state, but callers
// must not assume concurrent Run calls are safe unless the engine says so;
// wrap with [Serialized] when sharing.
type Session interface {
	Run(inputs map[string]*tensor.Tensor, outputs []string) (map[string]*tensor.Tensor, error)
	Close() error
}

// Loader loads a model file into a Session.
type Loader interface {
	Load(path string) (Session, error)
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(path string) (Session, error)

// Load implements [Loader].
func (f LoaderFunc) Load(path string) (Session, error) { return f(path) }

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Loader)
)

// Register makes an engine available for model files with the given
// extension (e.g. ".onnx"). Registering the same extension twice replaces
// the previous engine.
func Register(ext string, l Loader) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[normalizeExt(ext)] = l
}

// Engines returns the registered extensions in sorted order.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	exts := make([]string, 0, len(engines))
	for ext := range engines {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load loads the model at path with the engine registered for its file
// extension. All failures wrap [ErrModelLoad].
func Load(path string) (Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrModelLoad, path)
	}

	ext := normalizeExt(filepath.Ext(path))
	enginesMu.RLock()
	l, ok := engines[ext]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no engine registered for %q", ErrModelLoad, ext)
	}

	sess, err := l.Load(path)
	if err != nil {
		if errors.Is(err, ErrModelLoad) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	return sess, nil
}

// DefaultLoader loads through the engine registry.
var DefaultLoader Loader = LoaderFunc(Load)

// Output fetches a required output tensor by name.
func Output(outs map[string]*tensor.Tensor, name string) (*tensor.Tensor, error) {
	t, ok := outs[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: output %q not found", ErrInference, name)
	}
	return t, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
