package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	contentTypeMP4      = "video/mp4"
	contentTypeFrameLog = "application/cbor-seq"
)

type ProcessAnalysisUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	analyzer  port.VideoAnalyzer
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
	frameLog  bool
}

type ProcessAnalysisConfig struct {
	TempDir    string
	MaxRetries int
	// FrameLog uploads the per-frame CBOR log next to the annotated video.
	FrameLog bool
}

func NewProcessAnalysisUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	analyzer port.VideoAnalyzer,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessAnalysisConfig,
) *ProcessAnalysisUseCase {
	return &ProcessAnalysisUseCase{
		repo:      repo,
		storage:   storage,
		analyzer:  analyzer,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
		frameLog:  cfg.FrameLog,
	}
}

func (uc *ProcessAnalysisUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessAnalysisUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.AnalysisRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		job = entity.NewAnalysisJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("load job: %w", err)
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	if err := uc.analysisPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *ProcessAnalysisUseCase) analysisPipeline(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download the uploaded video
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		if ctx.Err() != nil {
			log.Warn("download interrupted", zap.Error(err))
			return fmt.Errorf("download interrupted: %w", err)
		}
		log.Error("failed to download video", zap.Error(err))
		if errors.Is(err, entity.ErrVideoNotFound) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error())
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Analyze and annotate
	anStart := time.Now()
	in := port.AnalyzeInput{
		InputPath:  videoPath,
		OutputPath: filepath.Join(workDir, "annotated.mp4"),
	}
	if uc.frameLog {
		in.FrameLogPath = filepath.Join(workDir, "frames.cbor")
	}
	summary, err := uc.analyzer.Analyze(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the attempt unspent so the redelivery starts over.
			log.Warn("analysis interrupted", zap.Error(err))
			return fmt.Errorf("analysis interrupted: %w", err)
		}
		log.Error("analysis failed", zap.Error(err))
		if entity.IsInputError(err) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "analyze: "+err.Error())
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "analyze: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("analyze").Observe(time.Since(anStart).Seconds())

	// Upload results
	upStart := time.Now()
	ctx3, spanUp := tracer.Start(ctx, "upload_results")
	outputKey := fmt.Sprintf("%s/squat_%s.mp4", msg.UserID, job.ID.String())
	if err := uc.upload(ctx3, outputKey, summary.OutputPath, contentTypeMP4); err != nil {
		spanUp.End()
		log.Error("annotated video upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_video: "+err.Error(), log)
	}
	var frameLogKey string
	if summary.FrameLogPath != "" {
		frameLogKey = fmt.Sprintf("%s/squat_%s.cbor", msg.UserID, job.ID.String())
		if err := uc.upload(ctx3, frameLogKey, summary.FrameLogPath, contentTypeFrameLog); err != nil {
			spanUp.End()
			log.Error("frame log upload failed", zap.Error(err))
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_frame_log: "+err.Error(), log)
		}
	}
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(outputKey, frameLogKey, summary)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	uc.publishStatus(ctx, job, summary, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", summary.FrameCount),
		zap.Int("detected_frames", summary.DetectedFrames),
		zap.Float64("mean_accuracy", summary.MeanAccuracy),
		zap.String("output_key", outputKey),
	)

	return nil
}

func (uc *ProcessAnalysisUseCase) upload(ctx context.Context, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	return uc.storage.UploadResult(ctx, key, f, stat.Size(), contentType)
}

func (uc *ProcessAnalysisUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, nil, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessAnalysisUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, nil, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ProcessAnalysisUseCase) publishStatus(ctx context.Context, job *entity.AnalysisJob, summary *entity.AnalysisSummary, log *zap.Logger) {
	statusMsg := entity.AnalysisStatusMessage{
		JobID:          job.ID,
		UserID:         job.UserID,
		Status:         job.Status,
		VideoKey:       job.VideoKey,
		OutputKey:      job.OutputKey,
		FrameLogKey:    job.FrameLogKey,
		FrameCount:     job.FrameCount,
		DetectedFrames: job.DetectedFrames,
		MeanAccuracy:   job.MeanAccuracy,
		Duration:       job.VideoDuration,
		ErrorMessage:   job.ErrorMessage,
		Attempt:        job.Attempt,
		MaxAttempts:    job.MaxAttempts,
	}
	if summary != nil {
		statusMsg.Categories = summary.Categories
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
