package squat

import (
	"math"
	"testing"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/squat/squattest"
	"github.com/stretchr/testify/assert"
)

func TestClassifyAngleBoundaries(t *testing.T) {
	tests := []struct {
		avg  float64
		want entity.Category
	}{
		{0, entity.CategoryTooLow},
		{79.9, entity.CategoryTooLow},
		{80.0, entity.CategoryPerfect},
		{95.0, entity.CategoryPerfect},
		{110.0, entity.CategoryPerfect},
		{110.1, entity.CategoryAlmostThere},
		{140.0, entity.CategoryAlmostThere},
		{140.1, entity.CategoryTooHigh},
		{180.0, entity.CategoryTooHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyAngle(tt.avg).Category, "avg=%v", tt.avg)
	}
}

func TestClassifyAngleAccuracy(t *testing.T) {
	assert.Equal(t, 100, ClassifyAngle(95).Accuracy)
	assert.Equal(t, 90, ClassifyAngle(90).Accuracy)
	assert.Equal(t, 90, ClassifyAngle(100).Accuracy)
	assert.Equal(t, 50, ClassifyAngle(120).Accuracy)
	assert.Equal(t, 0, ClassifyAngle(145).Accuracy)
	assert.Equal(t, 0, ClassifyAngle(200).Accuracy)
	assert.Equal(t, 0, ClassifyAngle(-30).Accuracy)
}

func TestAccuracyMonotoneInDistance(t *testing.T) {
	prev := math.MaxInt
	for d := 0.0; d <= 120; d += 0.25 {
		above := ClassifyAngle(AccuracyCenter + d).Accuracy
		below := ClassifyAngle(AccuracyCenter - d).Accuracy

		assert.Equal(t, above, below, "distance %v", d)
		assert.LessOrEqual(t, above, prev, "distance %v", d)
		assert.GreaterOrEqual(t, above, 0)
		assert.LessOrEqual(t, above, 100)
		prev = above
	}
}

func TestEvaluateSquatBottom(t *testing.T) {
	ev := Evaluate(squattest.PoseWithKneeAngle(95))

	assert.InDelta(t, 95, ev.Angles.Left, 1e-6)
	assert.InDelta(t, 95, ev.Angles.Right, 1e-6)
	assert.InDelta(t, 95, ev.Angles.Average, 1e-6)
	assert.Equal(t, entity.FeedbackResult{Category: entity.CategoryPerfect, Accuracy: 100}, ev.Result)
}

func TestClassifyAveragesBothLegs(t *testing.T) {
	set := squattest.PoseWithKneeAngle(60)
	straight := squattest.PoseWithKneeAngle(170)
	set[entity.RightHip] = straight[entity.RightHip]
	set[entity.RightKnee] = straight[entity.RightKnee]
	set[entity.RightAnkle] = straight[entity.RightAnkle]

	got := Classify(set)
	assert.Equal(t, entity.CategoryAlmostThere, got.Category)
	assert.Equal(t, 60, got.Accuracy)
}
