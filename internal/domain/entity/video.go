package entity

import (
	"fmt"
	"image"
)

// Rational is an exact frame rate such as 30000/1001.
type Rational struct {
	Num int
	Den int
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// VideoInfo describes a stream. It is fixed when the stream is opened.
type VideoInfo struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FrameRate Rational `json:"-"`
	// Duration in seconds, zero when unknown.
	Duration float64 `json:"duration_seconds"`
	// FrameCount is the container's declared frame count, zero when unknown.
	FrameCount int `json:"-"`
}

// FrameSize is the byte length of one RGBA frame.
func (v VideoInfo) FrameSize() int {
	return v.Width * v.Height * 4
}

// EstimatedFrames returns the declared frame count or an estimate from duration.
func (v VideoInfo) EstimatedFrames() int {
	if v.FrameCount > 0 {
		return v.FrameCount
	}
	return int(v.Duration*v.FrameRate.Float() + 0.5)
}

// Frame is one decoded picture. Ownership moves from reader to annotator to
// writer; it is never shared between stages at the same time.
type Frame struct {
	Index int
	Image *image.RGBA
}
