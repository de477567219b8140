package entity

import "github.com/google/uuid"

// AnalysisRequestMessage is the inbound message from the squat.analysis queue.
type AnalysisRequestMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// AnalysisStatusMessage is the outbound message published to the squat.status queue.
type AnalysisStatusMessage struct {
	JobID          uuid.UUID        `json:"job_id"`
	UserID         string           `json:"user_id"`
	Status         JobStatus        `json:"status"`
	VideoKey       string           `json:"video_key"`
	OutputKey      string           `json:"output_key,omitempty"`
	FrameLogKey    string           `json:"frame_log_key,omitempty"`
	FrameCount     int              `json:"frame_count,omitempty"`
	DetectedFrames int              `json:"detected_frames,omitempty"`
	MeanAccuracy   float64          `json:"mean_accuracy,omitempty"`
	Categories     map[Category]int `json:"categories,omitempty"`
	Duration       float64          `json:"duration_seconds,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	Attempt        int              `json:"attempt"`
	MaxAttempts    int              `json:"max_attempts"`
}
