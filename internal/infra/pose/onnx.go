package pose

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// BlazePose landmark model geometry.
const (
	ModelInputSize = 256
	// The model emits 39 points (33 body plus 6 auxiliary), five values each.
	modelPoints = 39
	pointStride = 5
)

var (
	ortOnce sync.Once
	ortErr  error
)

// InitRuntime loads the onnxruntime shared library once per process.
func InitRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

type ONNXConfig struct {
	ModelPath              string
	LibraryPath            string
	InputName              string
	LandmarksOutput        string
	FlagOutput             string
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
}

func (c *ONNXConfig) defaults() {
	if c.InputName == "" {
		c.InputName = "input_1"
	}
	if c.LandmarksOutput == "" {
		c.LandmarksOutput = "Identity"
	}
	if c.FlagOutput == "" {
		c.FlagOutput = "Identity_1"
	}
}

// ONNXDetector runs the landmark model over the whole frame. It keeps the
// previous frame's detection state so that a tracked pose is held with the
// tracking threshold instead of the detection threshold.
type ONNXDetector struct {
	cfg     ONNXConfig
	logger  *zap.Logger
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	points  *ort.Tensor[float32]
	flag    *ort.Tensor[float32]

	tracking bool
}

func NewONNXDetector(cfg ONNXConfig, logger *zap.Logger) (*ONNXDetector, error) {
	cfg.defaults()
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("pose model path is required")
	}
	if err := InitRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(runtime.NumCPU())

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, ModelInputSize, ModelInputSize, 3))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	points, err := ort.NewEmptyTensor[float32](ort.NewShape(1, modelPoints*pointStride))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("landmark tensor: %w", err)
	}
	flag, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		points.Destroy()
		return nil, fmt.Errorf("flag tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.LandmarksOutput, cfg.FlagOutput},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{points, flag},
		options,
	)
	if err != nil {
		input.Destroy()
		points.Destroy()
		flag.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Info("onnx pose model loaded", zap.String("model", cfg.ModelPath))
	return &ONNXDetector{
		cfg:     cfg,
		logger:  logger,
		session: session,
		input:   input,
		points:  points,
		flag:    flag,
	}, nil
}

func (d *ONNXDetector) Detect(ctx context.Context, frame image.Image) (*entity.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := imaging.Resize(frame, ModelInputSize, ModelInputSize, imaging.Linear)
	fillInput(resized, d.input.GetData())

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("pose inference: %w", err)
	}

	threshold := d.cfg.MinDetectionConfidence
	if d.tracking {
		threshold = d.cfg.MinTrackingConfidence
	}
	set := decodeLandmarks(d.points.GetData(), d.flag.GetData()[0], threshold)
	d.tracking = set != nil
	return set, nil
}

func (d *ONNXDetector) Close() error {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.input != nil {
		d.input.Destroy()
		d.points.Destroy()
		d.flag.Destroy()
		d.input = nil
	}
	return nil
}

// fillInput writes img as NHWC floats in [0,1].
func fillInput(img *image.NRGBA, dst []float32) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for p := 0; p < len(row); p += 4 {
			dst[i] = float32(row[p]) / 255
			dst[i+1] = float32(row[p+1]) / 255
			dst[i+2] = float32(row[p+2]) / 255
			i += 3
		}
	}
}

// decodeLandmarks turns the raw model output into a normalized landmark set.
// Coordinates come out in model input pixels; visibility is a logit.
func decodeLandmarks(raw []float32, flag float32, threshold float64) *entity.LandmarkSet {
	if float64(flag) < threshold || len(raw) < entity.LandmarkCount*pointStride {
		return nil
	}
	var set entity.LandmarkSet
	for i := range set {
		p := raw[i*pointStride : (i+1)*pointStride]
		set[i] = entity.Landmark{
			X:          float64(p[0]) / ModelInputSize,
			Y:          float64(p[1]) / ModelInputSize,
			Z:          float64(p[2]) / ModelInputSize,
			Visibility: sigmoid(float64(p[3])),
		}
	}
	return &set
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
