package integration

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/squat/squattest"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/email"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/ffmpeg"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/framelog"
	miniostorage "github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/minio"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/overlay"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/pose"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/postgres"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/rabbitmq"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/usecase"
	"github.com/Balaji-Ram-R/Squats-Analyzer/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

const (
	exchange    = "squats.analyzer"
	queue       = "squat.analysis"
	statusQueue = "squat.status"
	dlq         = "squat.analysis.dlq"
	frames      = 10
)

type stack struct {
	pool    *pgxpool.Pool
	storage *miniostorage.Storage
	rmqConn *amqp.Connection
	rmqURL  string
	log     *zap.Logger
}

func startStack(ctx context.Context, t *testing.T) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("squats"),
		tcpostgres.WithUsername("squat"),
		tcpostgres.WithPassword("squat"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UploadBucket: "uploads",
		ResultBucket: "results",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqConn.Close() })

	log, err := logger.New("debug")
	require.NoError(t, err)

	return &stack{pool: pool, storage: storage, rmqConn: rmqConn, rmqURL: rmqURL, log: log}
}

// startWorker runs the analysis consumer until the test ends.
func (s *stack) startWorker(ctx context.Context, t *testing.T, detectors port.PoseDetectorFactory) {
	t.Helper()

	pub, err := rabbitmq.NewPublisher(s.rmqConn, exchange)
	require.NoError(t, err)

	annotator, err := overlay.NewAnnotator(overlay.DefaultOptions())
	require.NoError(t, err)

	codec := ffmpeg.NewCodec(ffmpeg.CodecConfig{}, s.log)
	analyzer := usecase.NewAnalyzer(codec, detectors, annotator, framelog.NewRecorder, s.log,
		usecase.AnalyzerConfig{TempDir: t.TempDir()})

	uc := usecase.NewProcessAnalysisUseCase(
		postgres.NewJobRepository(s.pool), s.storage, analyzer,
		rabbitmq.NewStatusPublisher(pub), rabbitmq.NewDLQPublisher(pub, dlq),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", s.log),
		s.log,
		usecase.ProcessAnalysisConfig{TempDir: t.TempDir(), MaxRetries: 3, FrameLog: true},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         s.rmqURL,
		Queue:       queue,
		Exchange:    exchange,
		DLQ:         dlq,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, s.log)
	require.NoError(t, err)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Start(consumerCtx)
	}()
	t.Cleanup(func() {
		consumerCancel()
		<-done
		_ = consumer.Close()
	})

	time.Sleep(500 * time.Millisecond)
}

func (s *stack) publish(ctx context.Context, t *testing.T, body []byte) {
	t.Helper()
	pub, err := rabbitmq.NewPublisher(s.rmqConn, exchange)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.PublishAnalysisRequest(ctx, body))
}

func makeVideo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	path := filepath.Join(t.TempDir(), "squat.mp4")
	out, err := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=gray:size=320x240:rate=10",
		"-frames:v", "10", "-pix_fmt", "yuv420p", "-c:v", "mpeg4", path,
	).CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func firstFrame(ctx context.Context, t *testing.T, codec *ffmpeg.Codec, path string) *image.RGBA {
	t.Helper()
	reader, err := codec.OpenReader(ctx, path)
	require.NoError(t, err)
	defer reader.Close()
	frame, err := reader.ReadFrame()
	require.NoError(t, err)
	return frame.Image
}

// countGreen counts pixels close to the overlay's positive color. The
// encoder is lossy, so the match is loose.
func countGreen(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.G > 180 && c.R < 100 && c.B < 100 {
				n++
			}
		}
	}
	return n
}

func TestProcessAnalysisEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	videoPath := makeVideo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(ctx, t)

	records := make([]framelog.Record, frames)
	for i := range records {
		set := squattest.PoseWithKneeAngle(95)
		records[i] = framelog.Record{Index: i, Detected: true, Landmarks: set[:]}
	}
	s.startWorker(ctx, t, func(context.Context) (port.PoseDetector, error) {
		return pose.NewReplay(records), nil
	})

	f, err := os.Open(videoPath)
	require.NoError(t, err)
	stat, err := f.Stat()
	require.NoError(t, err)
	videoKey := "testuser/squat.mp4"
	require.NoError(t, s.storage.UploadVideo(ctx, videoKey, f, stat.Size(), "video/mp4"))
	f.Close()

	statusCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statusMsgs, err := statusCh.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	jobID := uuid.New()
	body, err := json.Marshal(entity.AnalysisRequestMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		FileSize:  stat.Size(),
		UserEmail: "test@test.local",
	})
	require.NoError(t, err)
	s.publish(ctx, t, body)

	var status entity.AnalysisStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &status))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, status.JobID)
	require.Equal(t, entity.JobStatusCompleted, status.Status, status.ErrorMessage)
	assert.Equal(t, frames, status.FrameCount)
	assert.Equal(t, frames, status.DetectedFrames)
	assert.Equal(t, map[entity.Category]int{entity.CategoryPerfect: frames}, status.Categories)
	assert.InDelta(t, 100, status.MeanAccuracy, 1e-9)
	assert.NotEmpty(t, status.FrameLogKey)

	// The annotated video keeps the input's geometry and frame count.
	url, err := s.storage.ResultURL(ctx, status.OutputKey, time.Minute)
	require.NoError(t, err)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	annotated := filepath.Join(t.TempDir(), "annotated.mp4")
	out, err := os.Create(annotated)
	require.NoError(t, err)
	_, err = io.Copy(out, resp.Body)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	codec := ffmpeg.NewCodec(ffmpeg.CodecConfig{}, s.log)
	info, err := codec.Probe(ctx, annotated)
	require.NoError(t, err)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)
	assert.Equal(t, entity.Rational{Num: 10, Den: 1}, info.FrameRate)
	assert.Equal(t, frames, info.FrameCount)

	// Every decoded frame carries the green "Perfect Squat!" text near (50,50).
	source := firstFrame(ctx, t, codec, videoPath)
	textArea := image.Rect(50, 20, 300, 56)
	baseline := countGreen(source, textArea)

	reader, err := codec.OpenReader(ctx, annotated)
	require.NoError(t, err)
	defer reader.Close()
	decoded := 0
	for {
		frame, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Greater(t, countGreen(frame.Image, textArea), baseline+50, "frame %d", frame.Index)
		decoded++
	}
	assert.Equal(t, frames, decoded)

	var dbStatus string
	var dbFrames, dbDetected int
	err = s.pool.QueryRow(ctx,
		"SELECT status, frame_count, detected_frames FROM analysis_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrames, &dbDetected)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, frames, dbFrames)
	assert.Equal(t, frames, dbDetected)
}

func TestProcessAnalysisMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(ctx, t)
	s.startWorker(ctx, t, func(context.Context) (port.PoseDetector, error) {
		return pose.NewReplay(nil), nil
	})

	s.publish(ctx, t, []byte(`{invalid json`))

	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get(dlq, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
}
