package entity

// FrameReport is what the pipeline learned about one frame.
type FrameReport struct {
	Index     int
	Landmarks *LandmarkSet
	Angles    *KneeAngles
	Feedback  *FeedbackResult
}

func (r FrameReport) Detected() bool {
	return r.Landmarks != nil
}

// KneeAngles holds the per-leg knee angles and their mean, in degrees.
type KneeAngles struct {
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Average float64 `json:"average"`
}

// AnalysisSummary describes a finished analysis run.
type AnalysisSummary struct {
	OutputPath     string           `json:"output_path"`
	FrameLogPath   string           `json:"frame_log_path,omitempty"`
	Video          VideoInfo        `json:"video"`
	FrameCount     int              `json:"frame_count"`
	DetectedFrames int              `json:"detected_frames"`
	Categories     map[Category]int `json:"categories"`
	MeanAccuracy   float64          `json:"mean_accuracy"`
}

// Add folds one frame into the summary.
func (s *AnalysisSummary) Add(r FrameReport) {
	s.FrameCount++
	if r.Feedback == nil {
		return
	}
	if s.Categories == nil {
		s.Categories = make(map[Category]int, len(Categories))
	}
	s.Categories[r.Feedback.Category]++
	s.MeanAccuracy += (float64(r.Feedback.Accuracy) - s.MeanAccuracy) / float64(s.DetectedFrames+1)
	s.DetectedFrames++
}
