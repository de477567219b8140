package port

import "github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"

type FrameRecorder interface {
	Record(report entity.FrameReport) error
	Close() error
}

type FrameRecorderFactory func(path string) (FrameRecorder, error)
