package ffmpeg

import (
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"go.uber.org/zap"
)

// Codec decodes and encodes raw RGBA frames by piping them through ffmpeg.
type Codec struct {
	ffmpeg     string
	ffprobe    string
	codec      string
	quality    int
	defaultFPS entity.Rational
	logger     *zap.Logger
}

type CodecConfig struct {
	FFmpegPath  string
	FFprobePath string
	// OutputCodec is the ffmpeg video encoder, "mpeg4" produces mp4v streams.
	OutputCodec string
	// OutputQuality is passed as -q:v, lower is better.
	OutputQuality int
	DefaultFPS    int
}

func NewCodec(cfg CodecConfig, logger *zap.Logger) *Codec {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.OutputCodec == "" {
		cfg.OutputCodec = "mpeg4"
	}
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = 30
	}
	return &Codec{
		ffmpeg:     cfg.FFmpegPath,
		ffprobe:    cfg.FFprobePath,
		codec:      cfg.OutputCodec,
		quality:    cfg.OutputQuality,
		defaultFPS: entity.Rational{Num: cfg.DefaultFPS, Den: 1},
		logger:     logger,
	}
}
