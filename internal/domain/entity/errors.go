package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrVideoNotFound is returned by storage when the uploaded video is missing.
	ErrVideoNotFound = errors.New("video not found")
	ErrJobNotFound   = errors.New("job not found")
)

// Stage names the pipeline step an IOError happened in.
type Stage string

const (
	StageOpen   Stage = "open"
	StageRead   Stage = "read"
	StageDetect Stage = "detect"
	StageWrite  Stage = "write"
	StageClose  Stage = "close"
)

// IOError is the only failure an analysis pipeline returns besides context
// cancellation. Frame is -1 when the failure is not tied to a frame.
type IOError struct {
	Stage Stage
	Path  string
	Frame int
	Err   error
}

func (e *IOError) Error() string {
	if e.Frame >= 0 {
		return fmt.Sprintf("%s %s (frame %d): %v", e.Stage, e.Path, e.Frame, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err blames the input video itself: it could
// not be opened or decoded. Retrying such a failure cannot help.
func IsInputError(err error) bool {
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		return false
	}
	return ioErr.Stage == StageOpen || ioErr.Stage == StageRead
}
