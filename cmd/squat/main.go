// Command squat annotates a squat video on the local machine.
//
//	squat -in workout.mov -out workout_annotated.mp4 [-framelog run.cbor]
//
// Defaults come from the same environment variables and CONFIG_FILE as the
// services; flags override them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/app"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/config"
	"github.com/Balaji-Ram-R/Squats-Analyzer/pkg/logger"
	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
)

const barTemplate = `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.01f%%" "?"}} {{etime . "%s elapsed"}} {{rtime . "%s remain" "%s total" "???"}}`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "squat:", err)
		os.Exit(1)
	}
}

type options struct {
	in, out, frameLog string
	jsonSummary       bool
	quiet             bool
}

// parseFlags overrides cfg in place. Flag defaults are the loaded
// configuration, so an unset flag never masks LOG_LEVEL or CONFIG_FILE.
func parseFlags(args []string, cfg *config.Config) (options, error) {
	var opts options
	fs := flag.NewFlagSet("squat", flag.ContinueOnError)
	fs.StringVar(&opts.in, "in", "", "input video path (required)")
	fs.StringVar(&opts.out, "out", "", "annotated MP4 output path (default: temp file)")
	fs.StringVar(&opts.frameLog, "framelog", "", "write per-frame results to this CBOR log")
	fs.StringVar(&cfg.PoseProvider, "provider", cfg.PoseProvider, "pose provider: sidecar, onnx or replay")
	fs.StringVar(&cfg.PoseModelPath, "model", cfg.PoseModelPath, "BlazePose landmark model for the onnx provider")
	fs.StringVar(&cfg.PoseReplayPath, "replay", cfg.PoseReplayPath, "frame log to replay landmarks from")
	fs.BoolVar(&cfg.ShowAccuracy, "accuracy", cfg.ShowAccuracy, "draw the accuracy percentage under the feedback")
	fs.StringVar(&cfg.LogLevel, "logLevel", cfg.LogLevel, "log level")
	fs.BoolVar(&opts.jsonSummary, "json", false, "print the summary as JSON")
	fs.BoolVar(&opts.quiet, "q", false, "no progress bar")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.in == "" {
		fs.Usage()
		return opts, fmt.Errorf("-in is required")
	}
	return opts, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	analyzer, err := app.NewAnalyzer(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var bar *pb.ProgressBar
	input := port.AnalyzeInput{InputPath: opts.in, OutputPath: opts.out, FrameLogPath: opts.frameLog}
	if !opts.quiet {
		input.OnStart = func(info entity.VideoInfo) {
			bar = pb.ProgressBarTemplate(barTemplate).Start(info.EstimatedFrames())
			bar.Set("prefix", "analyzing")
		}
		input.OnFrame = func(entity.FrameReport) {
			bar.Increment()
		}
	}

	summary, err := analyzer.Analyze(ctx, input)
	if bar != nil {
		if err == nil {
			bar.SetTotal(int64(summary.FrameCount))
		}
		bar.Finish()
	}
	if err != nil {
		log.Debug("analysis failed", zap.Error(err))
		return err
	}

	if opts.jsonSummary {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(summary)
	return nil
}

func printSummary(s *entity.AnalysisSummary) {
	fmt.Printf("output:          %s\n", s.OutputPath)
	if s.FrameLogPath != "" {
		fmt.Printf("frame log:       %s\n", s.FrameLogPath)
	}
	fmt.Printf("frames:          %d (%dx%d @ %.2f fps)\n", s.FrameCount, s.Video.Width, s.Video.Height, s.Video.FrameRate.Float())
	fmt.Printf("pose detected:   %d\n", s.DetectedFrames)
	if s.DetectedFrames == 0 {
		return
	}
	fmt.Printf("mean accuracy:   %.1f%%\n", s.MeanAccuracy)

	cats := make([]entity.Category, 0, len(s.Categories))
	for c := range s.Categories {
		cats = append(cats, c)
	}
	order := map[entity.Category]int{}
	for i, c := range entity.Categories {
		order[c] = i
	}
	sort.Slice(cats, func(i, j int) bool { return order[cats[i]] < order[cats[j]] })
	for _, c := range cats {
		fmt.Printf("  %-26s %d\n", c.Message(), s.Categories[c])
	}
}
