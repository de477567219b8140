package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	maxResponseSize = 1 << 20
	closeTimeout    = 2 * time.Second
)

type sidecarRequest struct {
	Frame                  int     `msgpack:"frame"`
	Width                  int     `msgpack:"width"`
	Height                 int     `msgpack:"height"`
	Pixels                 []byte  `msgpack:"pixels"`
	MinDetectionConfidence float64 `msgpack:"min_detection_confidence"`
	MinTrackingConfidence  float64 `msgpack:"min_tracking_confidence"`
}

type sidecarResponse struct {
	Frame     int               `msgpack:"frame"`
	Landmarks []entity.Landmark `msgpack:"landmarks"`
	Error     string            `msgpack:"error"`
}

type SidecarConfig struct {
	Command                string
	Args                   []string
	Env                    []string
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	Timeout                time.Duration
}

// Sidecar runs pose detection in a helper process.
type Sidecar struct {
	cfg    SidecarConfig
	logger *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex
	frame  int
	broken error
	done   chan struct{}
}

func StartSidecar(ctx context.Context, cfg SidecarConfig, logger *zap.Logger) (*Sidecar, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("sidecar command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// The process outlives the caller's context; Close stops it.
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sidecar stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sidecar stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("sidecar stderr: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start sidecar %s: %w", cfg.Command, err)
	}

	s := &Sidecar{
		cfg:    cfg,
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		done:   make(chan struct{}),
	}
	go s.pumpStderr(stderr)

	logger.Info("pose sidecar started",
		zap.String("command", cfg.Command),
		zap.Int("pid", cmd.Process.Pid),
	)
	return s, nil
}

func (s *Sidecar) pumpStderr(r io.Reader) {
	defer close(s.done)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			s.logger.Error("pose sidecar", zap.String("line", line))
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			s.logger.Warn("pose sidecar", zap.String("line", line))
		default:
			s.logger.Debug("pose sidecar", zap.String("line", line))
		}
	}
}

func (s *Sidecar) Detect(ctx context.Context, frame image.Image) (*entity.LandmarkSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return nil, s.broken
	}

	b := frame.Bounds()
	req := sidecarRequest{
		Frame:                  s.frame,
		Width:                  b.Dx(),
		Height:                 b.Dy(),
		Pixels:                 packRGB(frame),
		MinDetectionConfidence: s.cfg.MinDetectionConfidence,
		MinTrackingConfidence:  s.cfg.MinTrackingConfidence,
	}
	s.frame++

	type result struct {
		resp sidecarResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := s.roundTrip(&req)
		ch <- result{resp, err}
	}()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			s.broken = fmt.Errorf("pose sidecar: %w", r.err)
			return nil, s.broken
		}
		return s.landmarks(req.Frame, r.resp), nil
	case <-timer.C:
		s.broken = fmt.Errorf("pose sidecar: no response for frame %d within %s", req.Frame, s.cfg.Timeout)
	case <-ctx.Done():
		s.broken = fmt.Errorf("pose sidecar: %w", ctx.Err())
	}
	// The stream is out of sync once a request is abandoned.
	_ = s.cmd.Process.Kill()
	return nil, s.broken
}

func (s *Sidecar) landmarks(frame int, resp sidecarResponse) *entity.LandmarkSet {
	if resp.Error != "" {
		s.logger.Warn("pose sidecar frame error",
			zap.Int("frame", frame),
			zap.String("error", resp.Error),
		)
		return nil
	}
	if len(resp.Landmarks) == 0 {
		return nil
	}
	if len(resp.Landmarks) != entity.LandmarkCount {
		s.logger.Warn("pose sidecar returned a partial landmark set",
			zap.Int("frame", frame),
			zap.Int("landmarks", len(resp.Landmarks)),
		)
		return nil
	}
	var set entity.LandmarkSet
	copy(set[:], resp.Landmarks)
	return &set
}

func (s *Sidecar) roundTrip(req *sidecarRequest) (sidecarResponse, error) {
	var resp sidecarResponse
	if err := writeMessage(s.stdin, req); err != nil {
		return resp, err
	}
	if err := readMessage(s.stdout, &resp); err != nil {
		return resp, err
	}
	if resp.Frame != req.Frame {
		return resp, fmt.Errorf("response for frame %d, expected %d", resp.Frame, req.Frame)
	}
	return resp, nil
}

func (s *Sidecar) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	_ = s.stdin.Close()

	// Drain stderr before Wait, which closes the pipe under the reader.
	select {
	case <-s.done:
	case <-time.After(closeTimeout):
		_ = s.cmd.Process.Kill()
		select {
		case <-s.done:
		case <-time.After(closeTimeout):
			s.logger.Warn("pose sidecar stderr still open after kill")
		}
	}
	err := s.cmd.Wait()
	s.cmd = nil

	if s.broken != nil {
		// Killed on purpose; the exit status says nothing new.
		return nil
	}
	if err != nil {
		return fmt.Errorf("pose sidecar exit: %w", err)
	}
	return nil
}

func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("sidecar closed its output")
		}
		return fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxResponseSize {
		return fmt.Errorf("response of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// packRGB returns the frame as tightly packed RGB24 rows.
func packRGB(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):rgba.PixOffset(b.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				out = append(out, row[i], row[i+1], row[i+2])
			}
		}
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return out
}
