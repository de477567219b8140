package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"go.uber.org/zap"
)

// Reader streams RGBA frames out of an ffmpeg decoder process.
type Reader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	info   entity.VideoInfo
	next   int
	exited bool
	logger *zap.Logger
}

// OpenReader probes the file and starts decoding it. Rotation metadata is
// ignored so frames keep the probed coded size.
func (c *Codec) OpenReader(ctx context.Context, videoPath string) (port.VideoReader, error) {
	info, err := c.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.ffmpeg,
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", videoPath,
		"-map", "0:v:0",
		"-an", "-sn",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	c.logger.Debug("decoder started",
		zap.String("path", videoPath),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.String("frame_rate", info.FrameRate.String()),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &Reader{cmd: cmd, stdout: stdout, stderr: stderr, info: info, logger: c.logger}, nil
}

func (r *Reader) Info() entity.VideoInfo {
	return r.info
}

func (r *Reader) ReadFrame() (*entity.Frame, error) {
	if r.exited {
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, r.info.Width, r.info.Height))
	n, err := io.ReadFull(r.stdout, img.Pix)
	switch {
	case err == nil:
		frame := &entity.Frame{Index: r.next, Image: img}
		r.next++
		return frame, nil
	case errors.Is(err, io.EOF):
		if waitErr := r.wait(); waitErr != nil {
			return nil, waitErr
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		_ = r.wait()
		return nil, fmt.Errorf("truncated frame %d: got %d of %d bytes: %s", r.next, n, len(img.Pix), r.stderr)
	default:
		return nil, fmt.Errorf("read frame %d: %w", r.next, err)
	}
}

func (r *Reader) wait() error {
	if r.exited {
		return nil
	}
	r.exited = true
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg decoder: %w: %s", err, r.stderr)
	}
	return nil
}

// Close stops the decoder. Stopping before the end of the stream is not an error.
func (r *Reader) Close() error {
	if r.exited {
		return nil
	}
	r.exited = true
	_ = r.cmd.Process.Kill()
	_ = r.cmd.Wait()
	r.logger.Debug("decoder stopped", zap.Int("frames_read", r.next))
	return nil
}
