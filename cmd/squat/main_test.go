package main

import (
	"testing"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsKeepsConfiguredLogLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "debug", PoseProvider: "onnx"}

	opts, err := parseFlags([]string{"-in", "squat.mov"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "squat.mov", opts.in)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "onnx", cfg.PoseProvider)
}

func TestParseFlagsOverridesConfig(t *testing.T) {
	cfg := &config.Config{LogLevel: "info", PoseProvider: "sidecar"}

	opts, err := parseFlags([]string{
		"-in", "squat.mov", "-out", "out.mp4", "-logLevel", "error",
		"-provider", "replay", "-replay", "run.cbor", "-accuracy", "-q", "-json",
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "out.mp4", opts.out)
	assert.True(t, opts.quiet)
	assert.True(t, opts.jsonSummary)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "replay", cfg.PoseProvider)
	assert.Equal(t, "run.cbor", cfg.PoseReplayPath)
	assert.True(t, cfg.ShowAccuracy)
}

func TestParseFlagsRequiresInput(t *testing.T) {
	_, err := parseFlags([]string{"-out", "out.mp4"}, &config.Config{})
	assert.Error(t, err)
}
