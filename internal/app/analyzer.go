// Package app assembles the analysis pipeline from configuration.
package app

import (
	"fmt"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/config"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/ffmpeg"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/framelog"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/overlay"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/pose"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/usecase"
	"go.uber.org/zap"
)

func PoseConfig(cfg *config.Config) pose.Config {
	return pose.Config{
		Provider:               cfg.PoseProvider,
		SidecarCommand:         cfg.PoseSidecarCommand,
		SidecarArgs:            cfg.PoseSidecarArgs,
		ModelPath:              cfg.PoseModelPath,
		LibraryPath:            cfg.ONNXRuntimeLib,
		ReplayPath:             cfg.PoseReplayPath,
		MinDetectionConfidence: cfg.MinDetectionConfidence,
		MinTrackingConfidence:  cfg.MinTrackingConfidence,
		RequestTimeout:         cfg.PoseRequestTimeout,
	}
}

// NewAnalyzer builds the ffmpeg backed analyzer described by cfg.
func NewAnalyzer(cfg *config.Config, logger *zap.Logger) (*usecase.Analyzer, error) {
	codec := ffmpeg.NewCodec(ffmpeg.CodecConfig{
		FFmpegPath:    cfg.FFmpegPath,
		FFprobePath:   cfg.FFprobePath,
		OutputCodec:   cfg.OutputCodec,
		OutputQuality: cfg.OutputQuality,
		DefaultFPS:    cfg.DefaultFPS,
	}, logger)

	detectors, err := pose.NewFactory(PoseConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("pose provider: %w", err)
	}

	opts := overlay.DefaultOptions()
	opts.ShowAccuracy = cfg.ShowAccuracy
	annotator, err := overlay.NewAnnotator(opts)
	if err != nil {
		return nil, fmt.Errorf("annotator: %w", err)
	}

	return usecase.NewAnalyzer(codec, detectors, annotator, framelog.NewRecorder, logger,
		usecase.AnalyzerConfig{TempDir: cfg.TempDir}), nil
}
