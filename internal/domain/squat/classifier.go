package squat

import (
	"math"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

// Depth thresholds on the averaged knee angle, in degrees.
const (
	TooLowBelow     = 80.0
	PerfectUpTo     = 110.0
	AlmostThereUpTo = 140.0
	AccuracyCenter  = 95.0
	AccuracySpread  = 50.0
)

// Evaluation is the classifier output together with the angles it was derived from.
type Evaluation struct {
	Angles entity.KneeAngles
	Result entity.FeedbackResult
}

// Evaluate measures both knee angles of a landmark set and classifies their mean.
func Evaluate(landmarks *entity.LandmarkSet) Evaluation {
	left := Angle(landmarks.At(entity.LeftHip), landmarks.At(entity.LeftKnee), landmarks.At(entity.LeftAnkle))
	right := Angle(landmarks.At(entity.RightHip), landmarks.At(entity.RightKnee), landmarks.At(entity.RightAnkle))
	avg := (left + right) / 2

	return Evaluation{
		Angles: entity.KneeAngles{Left: left, Right: right, Average: avg},
		Result: ClassifyAngle(avg),
	}
}

// Classify maps a landmark set to its feedback.
func Classify(landmarks *entity.LandmarkSet) entity.FeedbackResult {
	return Evaluate(landmarks).Result
}

// ClassifyAngle maps an averaged knee angle to a category and accuracy score.
// The accuracy is scored independently of the category boundaries.
func ClassifyAngle(avg float64) entity.FeedbackResult {
	var category entity.Category
	switch {
	case avg < TooLowBelow:
		category = entity.CategoryTooLow
	case avg <= PerfectUpTo:
		category = entity.CategoryPerfect
	case avg <= AlmostThereUpTo:
		category = entity.CategoryAlmostThere
	default:
		category = entity.CategoryTooHigh
	}

	return entity.FeedbackResult{Category: category, Accuracy: accuracy(avg)}
}

func accuracy(avg float64) int {
	score := math.Round((1 - math.Abs(avg-AccuracyCenter)/AccuracySpread) * 100)
	return int(math.Max(0, math.Min(100, score)))
}
