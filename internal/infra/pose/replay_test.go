package pose

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/squat/squattest"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/framelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayFollowsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cbor")
	w, err := framelog.Create(path)
	require.NoError(t, err)
	pose := squattest.PoseWithKneeAngle(130)
	require.NoError(t, w.Record(entity.FrameReport{Index: 0, Landmarks: pose}))
	require.NoError(t, w.Record(entity.FrameReport{Index: 1}))
	require.NoError(t, w.Close())

	r, err := OpenReplay(path)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	got, err := r.Detect(ctx, frame)
	require.NoError(t, err)
	assert.Equal(t, pose, got)

	got, err = r.Detect(ctx, frame)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.Detect(ctx, frame)
	require.NoError(t, err)
	assert.Nil(t, got, "past the end of the log")
}

func TestReplayHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReplay(nil).Detect(ctx, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenReplayMissingFile(t *testing.T) {
	_, err := OpenReplay(filepath.Join(t.TempDir(), "missing.cbor"))
	assert.Error(t, err)
}
