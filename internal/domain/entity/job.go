package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// AnalysisJob tracks one queued squat analysis while it is in flight.
type AnalysisJob struct {
	ID             uuid.UUID
	UserID         string
	VideoKey       string
	OutputKey      string
	FrameLogKey    string
	Status         JobStatus
	FrameCount     int
	DetectedFrames int
	MeanAccuracy   float64
	FileSize       int64
	VideoDuration  float64
	Attempt        int
	MaxAttempts    int
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func NewAnalysisJob(userID, videoKey string, fileSize int64, maxAttempts int) *AnalysisJob {
	now := time.Now().UTC()
	return &AnalysisJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *AnalysisJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *AnalysisJob) MarkCompleted(outputKey, frameLogKey string, summary *AnalysisSummary) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.OutputKey = outputKey
	j.FrameLogKey = frameLogKey
	j.FrameCount = summary.FrameCount
	j.DetectedFrames = summary.DetectedFrames
	j.MeanAccuracy = summary.MeanAccuracy
	j.VideoDuration = summary.Video.Duration
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *AnalysisJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *AnalysisJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
