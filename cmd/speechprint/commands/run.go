package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/cli"
	"github.com/haivivi/speechprint/pkg/pipeline"
	"github.com/haivivi/speechprint/pkg/speaker"
)

var (
	runRate       int
	runSegments   bool
	runEmbeddings bool
	runThreshold  float32
)

var runCmd = &cobra.Command{
	Use:   "run <input.wav|input.pcm|->",
	Short: "Run the frame pipeline over an audio file",
	Long: `Run voice activity detection, and speaker embedding when configured,
over a WAV file or raw little-endian PCM16 mono audio.

Input is resampled to vad.sample_rate and split into fixed-size frames; the
last partial frame is zero-padded. Use '-' to read raw PCM from stdin.

Examples:
  speechprint run call.wav --format table
  speechprint run call.pcm --rate 8000 --segments
  arecord -f S16_LE -r 16000 | speechprint run - --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := validateLabelBits(); err != nil {
			return err
		}
		if cmd.Flags().Changed("threshold") {
			cfg.Pipeline.Threshold = runThreshold
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		report, err := runFile(cfg, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, report)
	},
}

func init() {
	runCmd.Flags().IntVar(&runRate, "rate", frame.Rate16K, "sample rate of raw PCM input")
	runCmd.Flags().BoolVar(&runSegments, "segments", false, "report speech segments instead of frames")
	runCmd.Flags().BoolVar(&runEmbeddings, "embeddings", false, "include embedding vectors in the output")
	runCmd.Flags().IntVar(&labelBits, "label-bits", 0, "truncate voice labels to this many bits (multiple of 4)")
	runCmd.Flags().Float32Var(&runThreshold, "threshold", pipeline.DefaultThreshold, "speech probability threshold")
	rootCmd.AddCommand(runCmd)
}

func runFile(cfg *cli.Config, path string) (*runReport, error) {
	samples, err := readAudio(path, runRate, cfg.VAD.SampleRate)
	if err != nil {
		return nil, err
	}
	frames, err := frame.Split(cfg.VAD.SampleRate, cfg.VAD.FrameSize, samples)
	if err != nil {
		return nil, err
	}

	det, err := openDetector(cfg)
	if err != nil {
		return nil, err
	}
	defer det.Close()
	ext, err := openExtractor(cfg)
	if err != nil {
		return nil, err
	}
	if ext != nil {
		defer ext.Close()
	}

	start := time.Now()
	results := newPipeline(cfg, det, ext).Collect(frames)
	logger.Debug("pipeline done", "frames", len(results), "elapsed", time.Since(start))

	report := &runReport{
		ID:         uuid.NewString(),
		Input:      path,
		SampleRate: cfg.VAD.SampleRate,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(cfg.VAD.SampleRate),
		Frames:     len(results),
		threshold:  cfg.Pipeline.Threshold,
	}

	var labeler *speaker.Labeler
	for _, r := range results {
		if r.Speech {
			report.SpeechFrames++
		}
		if r.Err != nil {
			report.Errors++
		}
		if labeler == nil && r.Embedding != nil {
			if labeler, err = newLabeler(cfg, len(r.Embedding)); err != nil {
				return nil, err
			}
		}
	}

	if runSegments {
		segs := pipeline.Segments(results,
			pipeline.WithMinSilence(cfg.Pipeline.MinSilence),
			pipeline.WithLabeler(labeler),
		)
		for _, s := range segs {
			if s.Err != nil {
				return nil, fmt.Errorf("segment %d: %w", s.Start, s.Err)
			}
			if labelBits > 0 && s.Label != "" {
				if s.Label, err = speaker.Truncate(s.Label, labelBits); err != nil {
					return nil, err
				}
			}
			if !runEmbeddings {
				s.Embedding = nil
			}
			report.Segments = append(report.Segments, s)
		}
		report.segmentMode = true
		return report, nil
	}

	for _, r := range results {
		v := frameView{
			Seq:         r.Seq,
			Offset:      r.Offset,
			Probability: r.Probability,
			Speech:      r.Speech,
			Reset:       r.Reset,
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		if v.Label, err = labelOf(labeler, r.Embedding); err != nil {
			return nil, fmt.Errorf("frame %d: %w", r.Seq, err)
		}
		if runEmbeddings {
			v.Embedding = r.Embedding
		}
		report.Results = append(report.Results, v)
	}
	return report, nil
}

type runReport struct {
	ID           string             `json:"id"`
	Input        string             `json:"input"`
	SampleRate   int                `json:"sample_rate"`
	Duration     time.Duration      `json:"duration"`
	Frames       int                `json:"frames"`
	SpeechFrames int                `json:"speech_frames"`
	Errors       int                `json:"errors,omitempty"`
	Results      []frameView        `json:"results,omitempty"`
	Segments     []pipeline.Segment `json:"segments,omitempty"`

	threshold   float32
	segmentMode bool
}

type frameView struct {
	Seq         uint64        `json:"seq"`
	Offset      time.Duration `json:"offset"`
	Probability float32       `json:"probability"`
	Speech      bool          `json:"speech"`
	Reset       bool          `json:"reset,omitempty"`
	Label       string        `json:"label,omitempty"`
	Error       string        `json:"error,omitempty"`
	Embedding   []float32     `json:"embedding,omitempty"`
}

// Table implements cli.Tabular.
func (r *runReport) Table() cli.Table {
	footer := fmt.Sprintf("%s  %s  speech %d/%d frames  threshold %.2f",
		r.Input, cli.FormatDuration(r.Duration), r.SpeechFrames, r.Frames, r.threshold)

	if r.segmentMode {
		t := cli.Table{Headers: []string{"#", "START", "END", "DURATION", "FRAMES", "MEAN P", "LABEL"}, Footer: footer}
		for i, s := range r.Segments {
			t.Rows = append(t.Rows, []string{
				strconv.Itoa(i + 1),
				cli.FormatDuration(s.StartTime),
				cli.FormatDuration(s.EndTime),
				cli.FormatDuration(s.Duration()),
				strconv.Itoa(s.Frames),
				fmt.Sprintf("%.3f", s.MeanProbability),
				s.Label,
			})
		}
		return t
	}

	t := cli.Table{Headers: []string{"SEQ", "OFFSET", "PROB", "", "SPEECH", "LABEL"}, Footer: footer, MaxWidth: 40}
	for _, f := range r.Results {
		speech := ""
		switch {
		case f.Error != "":
			speech = "error"
		case f.Speech:
			speech = "yes"
		}
		if f.Reset {
			speech += " (reset)"
		}
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(f.Seq, 10),
			cli.FormatDuration(f.Offset),
			fmt.Sprintf("%.3f", f.Probability),
			cli.FormatBar(f.Probability, 20),
			speech,
			f.Label,
		})
	}
	return t
}
