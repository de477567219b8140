package squat

import (
	"math"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

// Angle returns the unsigned interior angle at b between rays b→a and b→c,
// in degrees within [0,180]. Coincident points yield a finite angle.
func Angle(a, b, c entity.Point2D) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	degrees := math.Abs(radians * 180.0 / math.Pi)
	if degrees > 180 {
		degrees = 360 - degrees
	}
	return degrees
}
