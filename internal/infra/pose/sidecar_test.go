package pose

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"testing"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/squat"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/squat/squattest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestHelperSidecar is not a real test. It is the fake sidecar process
// started by the tests below. The frame width picks the behavior.
func TestHelperSidecar(t *testing.T) {
	if os.Getenv("POSE_SIDECAR_HELPER") != "1" {
		return
	}
	in := bufio.NewReader(os.Stdin)
	for {
		var req sidecarRequest
		if err := readMessage(in, &req); err != nil {
			fmt.Fprintln(os.Stderr, "[WARNING] stdin closed, shutting down")
			os.Exit(0)
		}
		resp := sidecarResponse{Frame: req.Frame}
		switch req.Width {
		case 2:
			resp.Error = "model failure"
		case 3:
			resp.Landmarks = make([]entity.Landmark, 10)
		case 4:
			os.Exit(3)
		case 5:
			time.Sleep(time.Minute)
		case 6:
		default:
			if len(req.Pixels) != req.Width*req.Height*3 {
				resp.Error = "bad pixel buffer"
				break
			}
			set := squattest.PoseWithKneeAngle(95)
			resp.Landmarks = set[:]
		}
		if err := writeMessage(os.Stdout, &resp); err != nil {
			os.Exit(1)
		}
	}
}

func startHelper(t *testing.T, timeout time.Duration) *Sidecar {
	t.Helper()
	return startLoggedHelper(t, timeout, zap.NewNop())
}

func startLoggedHelper(t *testing.T, timeout time.Duration, logger *zap.Logger) *Sidecar {
	t.Helper()
	s, err := StartSidecar(context.Background(), SidecarConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperSidecar$"},
		Env:     []string{"POSE_SIDECAR_HELPER=1"},
		Timeout: timeout,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func frameOfWidth(w int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, 8))
}

func TestSidecarDetectsPose(t *testing.T) {
	s := startHelper(t, 5*time.Second)

	for i := 0; i < 3; i++ {
		set, err := s.Detect(context.Background(), frameOfWidth(16))
		require.NoError(t, err)
		require.NotNil(t, set)
		assert.Equal(t, entity.CategoryPerfect, squat.Classify(set).Category)
	}
	assert.NoError(t, s.Close())
}

func TestSidecarCloseKeepsFinalStderrLines(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := startLoggedHelper(t, 5*time.Second, zap.New(core))

	_, err := s.Detect(context.Background(), frameOfWidth(16))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	warnings := logs.FilterMessage("pose sidecar").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].ContextMap()["line"], "shutting down")
}

func TestSidecarSoftFailuresMeanNoPose(t *testing.T) {
	s := startHelper(t, 5*time.Second)

	for _, width := range []int{2, 3, 6} {
		set, err := s.Detect(context.Background(), frameOfWidth(width))
		require.NoError(t, err, "width %d", width)
		assert.Nil(t, set, "width %d", width)
	}

	set, err := s.Detect(context.Background(), frameOfWidth(16))
	require.NoError(t, err)
	assert.NotNil(t, set)
}

func TestSidecarDeathIsHardFailure(t *testing.T) {
	s := startHelper(t, 5*time.Second)

	_, err := s.Detect(context.Background(), frameOfWidth(4))
	require.Error(t, err)

	_, err = s.Detect(context.Background(), frameOfWidth(16))
	assert.Error(t, err)
}

func TestSidecarTimeout(t *testing.T) {
	s := startHelper(t, 200*time.Millisecond)

	start := time.Now()
	_, err := s.Detect(context.Background(), frameOfWidth(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoError(t, s.Close())
}

func TestSidecarMissingCommand(t *testing.T) {
	_, err := StartSidecar(context.Background(), SidecarConfig{Command: "/nonexistent/pose-sidecar"}, zap.NewNop())
	assert.Error(t, err)
}

func TestPackRGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	copy(img.Pix, []byte{1, 2, 3, 255, 4, 5, 6, 255})

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, packRGB(img))
	assert.Equal(t, []byte{1, 2, 3}, packRGB(img.SubImage(image.Rect(0, 0, 1, 1))))
}
