package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/squat"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Analyzer struct {
	codec     port.VideoCodec
	detectors port.PoseDetectorFactory
	annotator port.FrameAnnotator
	recorders port.FrameRecorderFactory
	logger    *zap.Logger
	tempDir   string
}

type AnalyzerConfig struct {
	TempDir string
}

// NewAnalyzer wires the pipeline. recorders may be nil, in which case frame
// logs are never written.
func NewAnalyzer(
	codec port.VideoCodec,
	detectors port.PoseDetectorFactory,
	annotator port.FrameAnnotator,
	recorders port.FrameRecorderFactory,
	logger *zap.Logger,
	cfg AnalyzerConfig,
) *Analyzer {
	return &Analyzer{
		codec:     codec,
		detectors: detectors,
		annotator: annotator,
		recorders: recorders,
		logger:    logger,
		tempDir:   cfg.TempDir,
	}
}

// AnalyzeFile annotates inputPath into a new temporary MP4 and returns its
// path. The caller owns the file.
func (a *Analyzer) AnalyzeFile(ctx context.Context, inputPath string) (string, error) {
	summary, err := a.Analyze(ctx, port.AnalyzeInput{InputPath: inputPath})
	if err != nil {
		return "", err
	}
	return summary.OutputPath, nil
}

// Analyze runs every frame of the input through pose detection, squat
// classification and annotation, and writes the result with the input's
// resolution and frame rate. On failure no output is left behind and the
// error is an *entity.IOError or the context's error.
func (a *Analyzer) Analyze(ctx context.Context, in port.AnalyzeInput) (*entity.AnalysisSummary, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "Analyzer.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("video.input", in.InputPath))

	metrics.ActiveAnalyses.Inc()
	defer metrics.ActiveAnalyses.Dec()

	log := a.logger.With(zap.String("input", in.InputPath))
	start := time.Now()

	summary, err := a.run(ctx, in, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AnalysesTotal.WithLabelValues(outcome(err)).Inc()
		log.Error("analysis failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("video.frames", summary.FrameCount),
		attribute.Int("video.detected_frames", summary.DetectedFrames),
	)
	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	log.Info("analysis completed",
		zap.String("output", summary.OutputPath),
		zap.Int("frames", summary.FrameCount),
		zap.Int("detected_frames", summary.DetectedFrames),
		zap.Float64("mean_accuracy", summary.MeanAccuracy),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

func outcome(err error) string {
	var ioErr *entity.IOError
	switch {
	case errors.As(err, &ioErr):
		return string(ioErr.Stage) + "_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// session holds the open resources of one analysis.
type session struct {
	in       port.AnalyzeInput
	outPath  string
	reader   port.VideoReader
	writer   port.VideoWriter
	detector port.PoseDetector
	recorder port.FrameRecorder
	frameLog string
	log      *zap.Logger
}

// abort releases everything and removes partial artifacts.
func (s *session) abort() {
	if s.reader != nil {
		_ = s.reader.Close()
	}
	if s.writer != nil {
		_ = s.writer.Close()
	}
	if s.detector != nil {
		_ = s.detector.Close()
	}
	if s.recorder != nil {
		_ = s.recorder.Close()
	}
	if s.outPath != "" {
		if err := os.Remove(s.outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove partial output", zap.String("path", s.outPath), zap.Error(err))
		}
	}
	if s.frameLog != "" {
		_ = os.Remove(s.frameLog)
	}
}

// finish closes everything in order, keeping the first failure.
func (s *session) finish() error {
	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}

	if err := s.reader.Close(); err != nil {
		keep(&entity.IOError{Stage: entity.StageClose, Path: s.in.InputPath, Frame: -1, Err: err})
	}
	s.reader = nil
	if err := s.writer.Close(); err != nil {
		keep(&entity.IOError{Stage: entity.StageClose, Path: s.outPath, Frame: -1, Err: err})
	}
	s.writer = nil
	if err := s.detector.Close(); err != nil {
		s.log.Warn("pose detector close failed", zap.Error(err))
	}
	s.detector = nil
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			keep(&entity.IOError{Stage: entity.StageClose, Path: s.in.FrameLogPath, Frame: -1, Err: err})
		}
		s.recorder = nil
	}

	if first != nil {
		s.abort()
	}
	return first
}

func (a *Analyzer) run(ctx context.Context, in port.AnalyzeInput, log *zap.Logger) (*entity.AnalysisSummary, error) {
	s := &session{in: in, log: log}

	reader, err := a.codec.OpenReader(ctx, in.InputPath)
	if err != nil {
		// A cancelled ctx kills ffprobe; that says nothing about the input.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &entity.IOError{Stage: entity.StageOpen, Path: in.InputPath, Frame: -1, Err: err}
	}
	s.reader = reader
	info := reader.Info()

	outPath, err := a.reserveOutput(in.OutputPath)
	if err != nil {
		s.abort()
		return nil, &entity.IOError{Stage: entity.StageWrite, Path: in.OutputPath, Frame: -1, Err: fmt.Errorf("reserve output: %w", err)}
	}
	s.outPath = outPath

	writer, err := a.codec.CreateWriter(ctx, outPath, info)
	if err != nil {
		s.abort()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &entity.IOError{Stage: entity.StageWrite, Path: outPath, Frame: -1, Err: fmt.Errorf("create output: %w", err)}
	}
	s.writer = writer

	detector, err := a.detectors(ctx)
	if err != nil {
		s.abort()
		return nil, &entity.IOError{Stage: entity.StageDetect, Path: in.InputPath, Frame: -1, Err: fmt.Errorf("create pose detector: %w", err)}
	}
	s.detector = detector

	if in.FrameLogPath != "" && a.recorders != nil {
		recorder, err := a.recorders(in.FrameLogPath)
		if err != nil {
			s.abort()
			return nil, &entity.IOError{Stage: entity.StageWrite, Path: in.FrameLogPath, Frame: -1, Err: fmt.Errorf("create frame log: %w", err)}
		}
		s.recorder = recorder
		s.frameLog = in.FrameLogPath
	}

	log.Debug("analysis started",
		zap.String("output", outPath),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.String("fps", info.FrameRate.String()),
	)

	if in.OnStart != nil {
		in.OnStart(info)
	}

	summary := &entity.AnalysisSummary{OutputPath: outPath, FrameLogPath: s.frameLog, Video: info}

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			s.abort()
			return nil, err
		}

		report, err := a.step(ctx, s, index)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.abort()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}

		summary.Add(report)
		if in.OnFrame != nil {
			in.OnFrame(report)
		}
	}

	if err := s.finish(); err != nil {
		return nil, err
	}
	return summary, nil
}

// step processes one frame. It returns io.EOF when the input is exhausted.
func (a *Analyzer) step(ctx context.Context, s *session, index int) (entity.FrameReport, error) {
	t := time.Now()
	frame, err := s.reader.ReadFrame()
	if errors.Is(err, io.EOF) {
		return entity.FrameReport{}, io.EOF
	}
	if err != nil {
		return entity.FrameReport{}, &entity.IOError{Stage: entity.StageRead, Path: s.in.InputPath, Frame: index, Err: err}
	}
	metrics.FrameStageDuration.WithLabelValues("decode").Observe(time.Since(t).Seconds())

	t = time.Now()
	landmarks, err := s.detector.Detect(ctx, frame.Image)
	if err != nil {
		return entity.FrameReport{}, &entity.IOError{Stage: entity.StageDetect, Path: s.in.InputPath, Frame: index, Err: err}
	}
	metrics.FrameStageDuration.WithLabelValues("detect").Observe(time.Since(t).Seconds())

	report := entity.FrameReport{Index: index, Landmarks: landmarks}
	if landmarks != nil {
		t = time.Now()
		ev := squat.Evaluate(landmarks)
		report.Angles = &ev.Angles
		report.Feedback = &ev.Result
		a.annotator.Annotate(frame, landmarks, &ev.Result)
		metrics.FrameStageDuration.WithLabelValues("annotate").Observe(time.Since(t).Seconds())
		metrics.FramesAnalyzedTotal.WithLabelValues("detected").Inc()
		metrics.FeedbackTotal.WithLabelValues(string(ev.Result.Category)).Inc()
	} else {
		metrics.FramesAnalyzedTotal.WithLabelValues("absent").Inc()
	}

	t = time.Now()
	if err := s.writer.WriteFrame(frame); err != nil {
		return report, &entity.IOError{Stage: entity.StageWrite, Path: s.outPath, Frame: index, Err: err}
	}
	metrics.FrameStageDuration.WithLabelValues("encode").Observe(time.Since(t).Seconds())

	if s.recorder != nil {
		if err := s.recorder.Record(report); err != nil {
			return report, &entity.IOError{Stage: entity.StageWrite, Path: s.in.FrameLogPath, Frame: index, Err: err}
		}
	}
	return report, nil
}

// reserveOutput returns path, or a fresh temp file name when path is empty.
func (a *Analyzer) reserveOutput(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	f, err := os.CreateTemp(a.tempDir, "squat-*.mp4")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
