package pose

import (
	"context"
	"fmt"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"go.uber.org/zap"
)

const (
	ProviderSidecar = "sidecar"
	ProviderONNX    = "onnx"
	ProviderReplay  = "replay"
)

type Config struct {
	Provider               string
	SidecarCommand         string
	SidecarArgs            []string
	ModelPath              string
	LibraryPath            string
	ReplayPath             string
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	RequestTimeout         time.Duration
}

// NewFactory returns a factory that builds a fresh detector of the configured
// kind for every video.
func NewFactory(cfg Config, logger *zap.Logger) (port.PoseDetectorFactory, error) {
	log := logger.With(zap.String("pose_provider", cfg.Provider))

	switch cfg.Provider {
	case ProviderSidecar:
		if cfg.SidecarCommand == "" {
			return nil, fmt.Errorf("sidecar provider needs a command")
		}
		sc := SidecarConfig{
			Command:                cfg.SidecarCommand,
			Args:                   cfg.SidecarArgs,
			MinDetectionConfidence: cfg.MinDetectionConfidence,
			MinTrackingConfidence:  cfg.MinTrackingConfidence,
			Timeout:                cfg.RequestTimeout,
		}
		return func(ctx context.Context) (port.PoseDetector, error) {
			return StartSidecar(ctx, sc, log)
		}, nil

	case ProviderONNX:
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("onnx provider needs a model path")
		}
		oc := ONNXConfig{
			ModelPath:              cfg.ModelPath,
			LibraryPath:            cfg.LibraryPath,
			MinDetectionConfidence: cfg.MinDetectionConfidence,
			MinTrackingConfidence:  cfg.MinTrackingConfidence,
		}
		return func(context.Context) (port.PoseDetector, error) {
			return NewONNXDetector(oc, log)
		}, nil

	case ProviderReplay:
		if cfg.ReplayPath == "" {
			return nil, fmt.Errorf("replay provider needs a frame log path")
		}
		path := cfg.ReplayPath
		return func(context.Context) (port.PoseDetector, error) {
			return OpenReplay(path)
		}, nil

	default:
		return nil, fmt.Errorf("unknown pose provider %q", cfg.Provider)
	}
}
