// Package framelog stores per-frame analysis results as length-prefixed CBOR
// records behind a magic header.
package framelog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/fxamacker/cbor/v2"
)

const magic = "SQUATLG1"

// maxRecordSize bounds one encoded record. A full landmark set encodes to
// well under 2 KiB.
const maxRecordSize = 64 << 10

// Record is the on-disk form of one frame.
type Record struct {
	Index     int                `cbor:"i"`
	Detected  bool               `cbor:"d"`
	Landmarks []entity.Landmark  `cbor:"l,omitempty"`
	Angles    *entity.KneeAngles `cbor:"a,omitempty"`
	Category  entity.Category    `cbor:"c,omitempty"`
	Accuracy  int                `cbor:"s,omitempty"`
}

func recordFromReport(r entity.FrameReport) Record {
	rec := Record{Index: r.Index, Detected: r.Detected(), Angles: r.Angles}
	if r.Landmarks != nil {
		rec.Landmarks = r.Landmarks[:]
	}
	if r.Feedback != nil {
		rec.Category = r.Feedback.Category
		rec.Accuracy = r.Feedback.Accuracy
	}
	return rec
}

// LandmarkSet returns the recorded landmarks, nil when the frame had none or
// the record does not hold a complete set.
func (r Record) LandmarkSet() *entity.LandmarkSet {
	if !r.Detected || len(r.Landmarks) != entity.LandmarkCount {
		return nil
	}
	var set entity.LandmarkSet
	copy(set[:], r.Landmarks)
	return &set
}

type Writer struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	em cbor.EncMode
}

func Create(path string) (*Writer, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 256*1024)
	if _, err := w.WriteString(magic); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w, em: em}, nil
}

// NewRecorder adapts Create to the recorder factory used by the pipeline.
func NewRecorder(path string) (port.FrameRecorder, error) {
	return Create(path)
}

func (w *Writer) Record(report entity.FrameReport) error {
	payload, err := w.em.Marshal(recordFromReport(report))
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", report.Index, err)
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("encode frame %d: record of %d bytes exceeds limit", report.Index, len(payload))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("frame log is closed")
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.w.Write(payload)
	return err
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		w.w = nil
		return err
	}
	err := w.f.Close()
	w.w = nil
	return err
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(head) != magic {
		return nil, fmt.Errorf("not a frame log")
	}
	return &Reader{r: bufio.NewReader(r)}, nil
}

// Next returns the next record or io.EOF.
func (r *Reader) Next() (Record, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("truncated record header")
		}
		return Record{}, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n > maxRecordSize {
		return Record{}, fmt.Errorf("record of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Record{}, fmt.Errorf("truncated record: %w", err)
	}
	var rec Record
	if err := cbor.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// ReadFile loads every record of a frame log.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
