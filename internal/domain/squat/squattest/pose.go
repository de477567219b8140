// Package squattest builds synthetic landmark sets for tests.
package squattest

import (
	"math"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

// PoseWithKneeAngle returns a full landmark set whose knees both bend at the
// given angle in degrees. The remaining landmarks are laid out as a plausible
// front-facing body so skeleton drawing touches the whole frame area.
func PoseWithKneeAngle(deg float64) *entity.LandmarkSet {
	var set entity.LandmarkSet
	for i := range set {
		set[i] = entity.Landmark{X: 0.5, Y: 0.3, Visibility: 1}
	}

	place := func(part entity.BodyPart, x, y float64) {
		set[part] = entity.Landmark{X: x, Y: y, Visibility: 1}
	}

	place(entity.Nose, 0.50, 0.15)
	place(entity.LeftShoulder, 0.60, 0.28)
	place(entity.RightShoulder, 0.40, 0.28)
	place(entity.LeftElbow, 0.66, 0.40)
	place(entity.RightElbow, 0.34, 0.40)
	place(entity.LeftWrist, 0.68, 0.50)
	place(entity.RightWrist, 0.32, 0.50)

	leg := func(hip, knee, ankle entity.BodyPart, hx float64) {
		hipPt := entity.Point2D{X: hx, Y: 0.50}
		kneePt := entity.Point2D{X: hx, Y: 0.65}
		// Thigh points straight up from the knee; the shin is rotated by deg from it.
		thigh := math.Atan2(hipPt.Y-kneePt.Y, hipPt.X-kneePt.X)
		shin := thigh + deg*math.Pi/180
		place(hip, hipPt.X, hipPt.Y)
		place(knee, kneePt.X, kneePt.Y)
		place(ankle, kneePt.X+0.15*math.Cos(shin), kneePt.Y+0.15*math.Sin(shin))
	}
	leg(entity.LeftHip, entity.LeftKnee, entity.LeftAnkle, 0.55)
	leg(entity.RightHip, entity.RightKnee, entity.RightAnkle, 0.45)

	return &set
}
