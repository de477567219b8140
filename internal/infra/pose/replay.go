package pose

import (
	"context"
	"image"
	"sync"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/framelog"
)

// Replay feeds back the landmarks recorded in a frame log, one record per
// Detect call. Calls past the end of the log report no pose.
type Replay struct {
	mu      sync.Mutex
	records []framelog.Record
	next    int
}

func NewReplay(records []framelog.Record) *Replay {
	return &Replay{records: records}
}

func OpenReplay(path string) (*Replay, error) {
	records, err := framelog.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReplay(records), nil
}

func (r *Replay) Detect(ctx context.Context, _ image.Image) (*entity.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.records) {
		r.next++
		return nil, nil
	}
	rec := r.records[r.next]
	r.next++
	return rec.LandmarkSet(), nil
}

func (r *Replay) Close() error {
	return nil
}
