package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/cli"
	"github.com/haivivi/speechprint/pkg/speaker"
	"github.com/haivivi/speechprint/pkg/vad"
)

// DefaultSameSpeakerThreshold is the cosine similarity at or above which
// two recordings are reported as the same speaker.
const DefaultSameSpeakerThreshold = 0.6

var (
	compareManifest  string
	compareThreshold float32
)

var compareCmd = &cobra.Command{
	Use:   "compare <a> <b> | compare -f <manifest>",
	Short: "Compare speakers across audio files",
	Long: `Compute one speaker embedding per file and print the pairwise cosine
similarity matrix.

A file's embedding is the normalized average of its speech frame
embeddings. Files without detected speech fall back to embedding the whole
recording.

The manifest (YAML or JSON) lists the files:

  threshold: 0.65
  files:
    - name: alice
      path: audio/alice.wav
    - path: audio/bob.pcm
      rate: 8000

Examples:
  speechprint compare alice.wav bob.wav
  speechprint compare -f speakers.yaml --format table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateLabelBits(); err != nil {
			return err
		}
		entries, threshold, err := compareEntries(args)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("threshold") {
			threshold = compareThreshold
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		report, err := compareFiles(cfg, entries, threshold)
		if err != nil {
			return err
		}
		return printResult(cmd, report)
	},
}

func init() {
	compareCmd.Flags().StringVarP(&compareManifest, "file", "f", "", "manifest file listing the audio files ('-' for stdin)")
	compareCmd.Flags().IntVar(&labelBits, "label-bits", 0, "truncate voice labels to this many bits (multiple of 4)")
	compareCmd.Flags().Float32Var(&compareThreshold, "threshold", DefaultSameSpeakerThreshold, "same-speaker similarity threshold")
	rootCmd.AddCommand(compareCmd)
}

func compareEntries(args []string) ([]cli.ManifestEntry, float32, error) {
	threshold := float32(DefaultSameSpeakerThreshold)
	if compareManifest != "" {
		if len(args) > 0 {
			return nil, 0, errors.New("use either -f or file arguments, not both")
		}
		m, err := cli.LoadManifest(compareManifest)
		if err != nil {
			return nil, 0, err
		}
		if m.Threshold > 0 {
			threshold = m.Threshold
		}
		if len(m.Files) < 2 {
			return nil, 0, fmt.Errorf("manifest needs at least 2 files, got %d", len(m.Files))
		}
		return m.Files, threshold, nil
	}

	if len(args) < 2 {
		return nil, 0, errors.New("compare needs at least 2 files or -f manifest")
	}
	entries := make([]cli.ManifestEntry, len(args))
	for i, p := range args {
		entries[i] = cli.ManifestEntry{Name: filepath.Base(p), Path: p}
	}
	return entries, threshold, nil
}

func compareFiles(cfg *cli.Config, entries []cli.ManifestEntry, threshold float32) (*compareReport, error) {
	det, err := openDetector(cfg)
	if err != nil {
		return nil, err
	}
	defer det.Close()
	ext, err := requireExtractor(cfg)
	if err != nil {
		return nil, err
	}
	defer ext.Close()

	report := &compareReport{Threshold: threshold}
	embs := make([][]float32, len(entries))
	var labeler *speaker.Labeler
	for i, e := range entries {
		emb, speech, err := embedFile(cfg, det, ext, e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		embs[i] = emb

		if labeler == nil || labeler.Dim() != len(emb) {
			if labeler, err = newLabeler(cfg, len(emb)); err != nil {
				return nil, err
			}
		}
		f := compareFile{Name: e.Name, Path: e.Path, SpeechFrames: speech, Dim: len(emb)}
		if f.Label, err = labelOf(labeler, emb); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		report.Files = append(report.Files, f)
	}

	report.Matrix = make([][]float32, len(embs))
	for i := range embs {
		report.Matrix[i] = make([]float32, len(embs))
		for j := range embs {
			report.Matrix[i][j] = speaker.CosineSimilarity(embs[i], embs[j])
			if j <= i {
				continue
			}
			pair := comparePair{
				A:          entries[i].Name,
				B:          entries[j].Name,
				Similarity: report.Matrix[i][j],
				Same:       report.Matrix[i][j] >= threshold,
			}
			if a, b := report.Files[i].Label, report.Files[j].Label; a != "" && b != "" {
				d, err := speaker.Distance(a, b)
				if err != nil {
					return nil, err
				}
				pair.LabelDistance = &d
			}
			report.Pairs = append(report.Pairs, pair)
		}
	}
	return report, nil
}

// embedFile returns the file's speaker embedding and its speech frame count.
func embedFile(cfg *cli.Config, det *vad.Detector, ext *speaker.Extractor, e cli.ManifestEntry) ([]float32, int, error) {
	rate := e.Rate
	if rate == 0 {
		rate = runRate
	}
	samples, err := readAudio(e.Path, rate, cfg.VAD.SampleRate)
	if err != nil {
		return nil, 0, err
	}
	frames, err := frame.Split(cfg.VAD.SampleRate, cfg.VAD.FrameSize, samples)
	if err != nil {
		return nil, 0, err
	}

	det.Reset()
	var (
		vectors [][]float32
		speech  int
	)
	for _, r := range newPipeline(cfg, det, ext).Collect(frames) {
		if !r.Speech {
			continue
		}
		speech++
		if r.Embedding != nil {
			vectors = append(vectors, r.Embedding)
		}
	}
	if len(vectors) > 0 {
		return speaker.Average(vectors), speech, nil
	}

	logger.Debug("no speech embeddings, embedding whole file", "file", e.Path)
	emb, err := ext.Compute(samples)
	if err != nil {
		return nil, speech, err
	}
	return speaker.Normalize(emb), speech, nil
}

type compareReport struct {
	Threshold float32       `json:"threshold"`
	Files     []compareFile `json:"files"`
	Matrix    [][]float32   `json:"matrix"`
	Pairs     []comparePair `json:"pairs"`
}

type compareFile struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	SpeechFrames int    `json:"speech_frames"`
	Dim          int    `json:"dim"`
	Label        string `json:"label,omitempty"`
}

type comparePair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float32 `json:"similarity"`
	Same       bool    `json:"same"`

	// LabelDistance is the Hamming distance of the two voice labels.
	LabelDistance *int `json:"label_distance,omitempty"`
}

// Table implements cli.Tabular.
func (r *compareReport) Table() cli.Table {
	t := cli.Table{Headers: []string{""}, MaxWidth: 24}
	for _, f := range r.Files {
		t.Headers = append(t.Headers, f.Name)
	}
	for i, row := range r.Matrix {
		cells := []string{r.Files[i].Name}
		for j, v := range row {
			cell := fmt.Sprintf("%.3f", v)
			if i != j && v >= r.Threshold {
				cell += " *"
			}
			cells = append(cells, cell)
		}
		t.Rows = append(t.Rows, cells)
	}
	same := 0
	for _, p := range r.Pairs {
		if p.Same {
			same++
		}
	}
	t.Footer = fmt.Sprintf("* same speaker (>= %.2f): %d of %d pairs", r.Threshold, same, len(r.Pairs))
	return t
}
