package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
)

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's geometry and timing with ffprobe.
func (c *Codec) Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames:format=duration",
		"-of", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return entity.VideoInfo{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return entity.VideoInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbe(output, c.defaultFPS)
}

func parseProbe(data []byte, defaultFPS entity.Rational) (entity.VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return entity.VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return entity.VideoInfo{}, fmt.Errorf("no video stream")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return entity.VideoInfo{}, fmt.Errorf("invalid video size %dx%d", s.Width, s.Height)
	}

	info := entity.VideoInfo{Width: s.Width, Height: s.Height}

	info.FrameRate = parseRational(s.AvgFrameRate)
	if !info.FrameRate.Valid() {
		info.FrameRate = parseRational(s.RFrameRate)
	}
	if !info.FrameRate.Valid() {
		info.FrameRate = defaultFPS
	}

	if n, err := strconv.Atoi(s.NbFrames); err == nil {
		info.FrameCount = n
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	return info, nil
}

// parseRational accepts "30000/1001", "25/1" or "25". Invalid input yields a zero Rational.
func parseRational(s string) entity.Rational {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		den = "1"
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return entity.Rational{}
	}
	d, err := strconv.Atoi(den)
	if err != nil {
		return entity.Rational{}
	}
	r := entity.Rational{Num: n, Den: d}
	if !r.Valid() {
		return entity.Rational{}
	}
	return r
}
