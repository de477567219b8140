package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"go.uber.org/zap"
)

// Writer encodes RGBA frames into a video file through an ffmpeg process.
type Writer struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *tailBuffer
	info    entity.VideoInfo
	path    string
	written int
	closed  bool
	logger  *zap.Logger
}

// CreateWriter starts an encoder producing the same size and frame rate as info.
func (c *Codec) CreateWriter(ctx context.Context, outputPath string, info entity.VideoInfo) (port.VideoWriter, error) {
	args := []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-framerate", info.FrameRate.String(),
		"-i", "pipe:0",
		"-an",
		"-c:v", c.codec,
	}
	if c.quality > 0 {
		args = append(args, "-q:v", strconv.Itoa(c.quality))
	}
	args = append(args, "-pix_fmt", "yuv420p", "-f", "mp4", outputPath)

	cmd := exec.CommandContext(ctx, c.ffmpeg, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg encoder: %w", err)
	}

	c.logger.Debug("encoder started",
		zap.String("path", outputPath),
		zap.String("codec", c.codec),
		zap.String("frame_rate", info.FrameRate.String()),
	)

	return &Writer{cmd: cmd, stdin: stdin, stderr: stderr, info: info, path: outputPath, logger: c.logger}, nil
}

func (w *Writer) WriteFrame(frame *entity.Frame) error {
	if w.closed {
		return fmt.Errorf("write frame %d: writer closed", frame.Index)
	}
	b := frame.Image.Bounds()
	if b.Dx() != w.info.Width || b.Dy() != w.info.Height {
		return fmt.Errorf("frame %d is %dx%d, stream is %dx%d", frame.Index, b.Dx(), b.Dy(), w.info.Width, w.info.Height)
	}

	img := frame.Image
	rowLen := w.info.Width * 4
	if img.Stride == rowLen {
		if _, err := w.stdin.Write(img.Pix[:w.info.FrameSize()]); err != nil {
			return fmt.Errorf("write frame %d: %w: %s", frame.Index, err, w.stderr)
		}
	} else {
		for y := 0; y < w.info.Height; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+rowLen]
			if _, err := w.stdin.Write(row); err != nil {
				return fmt.Errorf("write frame %d: %w: %s", frame.Index, err, w.stderr)
			}
		}
	}

	w.written++
	return nil
}

// Close flushes the encoder and waits for the container to be finalized.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.stdin.Close(); err != nil {
		_ = w.cmd.Wait()
		return fmt.Errorf("close encoder input: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encoder: %w: %s", err, w.stderr)
	}

	w.logger.Debug("encoder finished", zap.String("path", w.path), zap.Int("frames_written", w.written))
	return nil
}
