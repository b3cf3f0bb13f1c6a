package speaker_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/haivivi/speechprint/pkg/audio/fbank"
	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/inference/mock"
	"github.com/haivivi/speechprint/pkg/speaker"
	"github.com/haivivi/speechprint/pkg/tensor"
)

func sine(n int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

// meanPoolSession emits the per-bin mean of the (1, T, F) features as the
// embedding, so the output depends deterministically on the input.
func meanPoolSession() *mock.Session {
	return &mock.Session{
		RunFunc: func(in map[string]*tensor.Tensor, _ []string) (map[string]*tensor.Tensor, error) {
			feats, ok := in["feats"]
			if !ok {
				return nil, errors.New("missing feats")
			}
			shape := feats.Shape()
			data, _ := feats.Float32s()
			T, F := int(shape[1]), int(shape[2])
			emb := make([]float32, F)
			for t := range T {
				for f := range F {
					emb[f] += data[t*F+f] / float32(T)
				}
			}
			out, _ := tensor.NewFloat32(tensor.Shape{1, int64(F)}, emb)
			return map[string]*tensor.Tensor{"embs": out}, nil
		},
	}
}

func TestComputeShapesAndNames(t *testing.T) {
	sess := meanPoolSession()
	ext, err := speaker.NewWithSession(sess)
	if err != nil {
		t.Fatal(err)
	}
	emb, err := ext.Compute(sine(16000, 220))
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 80 {
		t.Fatalf("embedding len = %d, want 80", len(emb))
	}

	calls := sess.Calls()
	if len(calls) != 1 {
		t.Fatalf("Run called %d times", len(calls))
	}
	shape := calls[0].Inputs["feats"].Shape()
	if !shape.Equal(tensor.Shape{1, 98, 80}) {
		t.Errorf("feats shape = %s, want [1 98 80]", shape)
	}
	if len(calls[0].Outputs) != 1 || calls[0].Outputs[0] != "embs" {
		t.Errorf("outputs = %v", calls[0].Outputs)
	}
}

func TestComputeDeterministicFreshSlice(t *testing.T) {
	ext, _ := speaker.NewWithSession(meanPoolSession())
	pcm := sine(8000, 300)
	a, err := ext.Compute(pcm)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ext.Compute(pcm)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("emb[%d] differs: %f vs %f", i, a[i], b[i])
		}
	}
	a[0] = 1e9
	if b[0] == 1e9 {
		t.Error("Compute results share memory")
	}
}

func TestEmbeddingLengthIsConstant(t *testing.T) {
	features := speaker.DefaultFeatures()
	ext, _ := speaker.NewWithSession(meanPoolSession(), speaker.WithFeatures(features))

	shortest := features.MinSamples()
	inputs := map[string][]float32{
		"one window": sine(shortest, 440),
		"one frame":  sine(512, 220),
		"silence":    make([]float32, 4000),
		"one second": sine(16000, 3000),
	}
	var first []float32
	for name, pcm := range inputs {
		emb, err := ext.Compute(pcm)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(emb) != 80 {
			t.Errorf("%s: len = %d, want 80", name, len(emb))
		}
		if first == nil {
			first = emb
			continue
		}
		if len(emb) != len(first) {
			t.Errorf("%s: len = %d, differs from %d", name, len(emb), len(first))
		}
	}

	a, _ := ext.Compute(sine(512, 220))
	b, _ := ext.Compute(sine(512, 3000))
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different inputs produced the same embedding")
	}
}

func TestComputeTooShort(t *testing.T) {
	sess := meanPoolSession()
	ext, _ := speaker.NewWithSession(sess)
	_, err := ext.Compute(make([]float32, 100))
	if !errors.Is(err, speaker.ErrFeatureExtraction) {
		t.Fatalf("err = %v, want ErrFeatureExtraction", err)
	}
	if !errors.Is(err, fbank.ErrTooShort) {
		t.Errorf("err = %v, want wrapped fbank.ErrTooShort", err)
	}
	if len(sess.Calls()) != 0 {
		t.Error("session run despite feature failure")
	}
}

func TestComputeFeatureError(t *testing.T) {
	boom := errors.New("boom")
	ext, _ := speaker.NewWithSession(meanPoolSession(), speaker.WithFeatures(
		speaker.FeatureFunc(func([]float32) (*tensor.Tensor, error) { return nil, boom }),
	))
	_, err := ext.Compute(sine(16000, 220))
	if !errors.Is(err, speaker.ErrFeatureExtraction) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestComputeRejectsNon2DFeatures(t *testing.T) {
	ext, _ := speaker.NewWithSession(meanPoolSession(), speaker.WithFeatures(
		speaker.FeatureFunc(func([]float32) (*tensor.Tensor, error) {
			return tensor.Zeros(tensor.Shape{1, 2, 3}), nil
		}),
	))
	if _, err := ext.Compute(nil); !errors.Is(err, speaker.ErrFeatureExtraction) {
		t.Fatalf("err = %v, want ErrFeatureExtraction", err)
	}
}

func TestComputeMissingOutput(t *testing.T) {
	sess := &mock.Session{Outputs: map[string]*tensor.Tensor{"other": tensor.Zeros(tensor.Shape{1, 4})}}
	ext, _ := speaker.NewWithSession(sess)
	_, err := ext.Compute(sine(16000, 220))
	if !errors.Is(err, inference.ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
}

func TestComputeInt64Output(t *testing.T) {
	bad, _ := tensor.NewInt64(tensor.Shape{1, 2}, []int64{1, 2})
	ext, _ := speaker.NewWithSession(&mock.Session{Outputs: map[string]*tensor.Tensor{"embs": bad}})
	_, err := ext.Compute(sine(16000, 220))
	if !errors.Is(err, inference.ErrInference) || !errors.Is(err, tensor.ErrDType) {
		t.Fatalf("err = %v, want ErrInference wrapping ErrDType", err)
	}
}

func TestComputeEngineError(t *testing.T) {
	ext, _ := speaker.NewWithSession(&mock.Session{RunErr: errors.New("oom")})
	if _, err := ext.Compute(sine(16000, 220)); !errors.Is(err, inference.ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
}

func TestWithNames(t *testing.T) {
	sess := &mock.Session{Outputs: map[string]*tensor.Tensor{"out0": tensor.Zeros(tensor.Shape{1, 8})}}
	ext, _ := speaker.NewWithSession(sess, speaker.WithNames("in0", "out0"))
	emb, err := ext.Compute(sine(16000, 220))
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 8 {
		t.Errorf("len = %d, want 8", len(emb))
	}
	if _, ok := sess.Calls()[0].Inputs["in0"]; !ok {
		t.Error("input not named in0")
	}
}

func TestCMVNFeatures(t *testing.T) {
	feats, err := speaker.NewFbankFeatures(fbank.DefaultConfig(), speaker.WithCMVN(true))
	if err != nil {
		t.Fatal(err)
	}
	ft, err := feats.ComputeFbank(sine(16000, 220))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := ft.Float32s()
	shape := ft.Shape()
	T, F := int(shape[0]), int(shape[1])
	for f := range F {
		var sum float64
		for t := range T {
			sum += float64(data[t*F+f])
		}
		if math.Abs(sum/float64(T)) > 1e-3 {
			t.Fatalf("bin %d mean = %f, want ~0", f, sum/float64(T))
		}
	}
	if feats.MinSamples() != 400 {
		t.Errorf("MinSamples = %d", feats.MinSamples())
	}
}

func TestNewLoader(t *testing.T) {
	loader := &mock.Loader{Session: meanPoolSession()}
	ext, err := speaker.New("speaker.onnx", speaker.WithLoader(loader))
	if err != nil {
		t.Fatal(err)
	}
	if loader.LoadCount() != 1 {
		t.Errorf("LoadCount = %d", loader.LoadCount())
	}
	if err := ext.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := ext.Compute(sine(16000, 220)); !errors.Is(err, speaker.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestNewLoadError(t *testing.T) {
	_, err := speaker.New(t.TempDir() + "/missing.onnx")
	if !errors.Is(err, inference.ErrModelLoad) {
		t.Fatalf("err = %v, want ErrModelLoad", err)
	}
	if _, err := speaker.NewWithSession(nil); !errors.Is(err, inference.ErrModelLoad) {
		t.Fatalf("err = %v, want ErrModelLoad", err)
	}
}

func TestConcurrentCompute(t *testing.T) {
	ext, _ := speaker.NewWithSession(meanPoolSession())
	want, err := ext.Compute(sine(4000, 440))
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ext.Compute(sine(4000, 440))
			if err != nil {
				errs <- err
				return
			}
			for i := range want {
				if got[i] != want[i] {
					errs <- errors.New("concurrent result differs")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
