package port

import (
	"context"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

// VideoReader yields decoded frames in order. ReadFrame returns io.EOF after
// the last frame.
type VideoReader interface {
	Info() entity.VideoInfo
	ReadFrame() (*entity.Frame, error)
	Close() error
}

type VideoWriter interface {
	WriteFrame(frame *entity.Frame) error
	Close() error
}

type VideoCodec interface {
	OpenReader(ctx context.Context, path string) (VideoReader, error)
	CreateWriter(ctx context.Context, path string, info entity.VideoInfo) (VideoWriter, error)
}
