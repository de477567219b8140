package port

import (
	"context"
	"image"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

// PoseDetector finds the landmarks of one person on a frame. A nil set with a
// nil error means no pose was detected; an error is a hard provider fault.
// Implementations may keep tracking state between calls and are not safe for
// concurrent use.
type PoseDetector interface {
	Detect(ctx context.Context, frame image.Image) (*entity.LandmarkSet, error)
	Close() error
}

// PoseDetectorFactory builds a fresh detector for one video.
type PoseDetectorFactory func(ctx context.Context) (PoseDetector, error)
