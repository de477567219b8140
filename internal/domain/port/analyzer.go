package port

import (
	"context"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

type AnalyzeInput struct {
	InputPath string
	// OutputPath is created when set; otherwise a temp file is used.
	OutputPath string
	// FrameLogPath enables the per-frame log when set.
	FrameLogPath string
	// OnStart receives the input stream description once it is open.
	OnStart func(entity.VideoInfo)
	OnFrame func(entity.FrameReport)
}

type VideoAnalyzer interface {
	Analyze(ctx context.Context, in AnalyzeInput) (*entity.AnalysisSummary, error)
}
