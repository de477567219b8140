package port

import "github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"

// FrameAnnotator draws the skeleton and feedback onto a frame in place. Nil
// landmarks or result leave the corresponding layer out.
type FrameAnnotator interface {
	Annotate(frame *entity.Frame, landmarks *entity.LandmarkSet, result *entity.FeedbackResult) *entity.Frame
}
