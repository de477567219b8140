// Package overlay draws the pose skeleton and squat feedback onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	PositiveColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	NegativeColor   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ConnectionColor = color.RGBA{R: 224, G: 224, B: 224, A: 255}
	LandmarkColor   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

type Options struct {
	LineWidth    float64
	PointRadius  float64
	FontSize     float64
	TextOrigin   image.Point
	ShowAccuracy bool
}

func DefaultOptions() Options {
	return Options{
		LineWidth:   2,
		PointRadius: 2,
		FontSize:    30,
		TextOrigin:  image.Pt(50, 50),
	}
}

// Annotator is safe for concurrent use; text rendering is serialized because
// font faces keep per-face glyph buffers.
type Annotator struct {
	opts   Options
	faceMu sync.Mutex
	face   font.Face
}

func NewAnnotator(opts Options) (*Annotator, error) {
	def := DefaultOptions()
	if opts.LineWidth <= 0 {
		opts.LineWidth = def.LineWidth
	}
	if opts.PointRadius <= 0 {
		opts.PointRadius = def.PointRadius
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.TextOrigin == (image.Point{}) {
		opts.TextOrigin = def.TextOrigin
	}

	fnt, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}

	return &Annotator{opts: opts, face: face}, nil
}

// Annotate draws the skeleton when landmarks are present and the feedback text
// when result is present. The frame is modified in place and returned.
func (a *Annotator) Annotate(frame *entity.Frame, landmarks *entity.LandmarkSet, result *entity.FeedbackResult) *entity.Frame {
	if frame == nil || frame.Image == nil {
		return frame
	}
	if landmarks != nil {
		a.drawSkeleton(frame.Image, landmarks)
	}
	if result != nil {
		a.drawFeedback(frame.Image, *result)
	}
	return frame
}

func (a *Annotator) drawSkeleton(img *image.RGBA, landmarks *entity.LandmarkSet) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over

	toPixel := func(p entity.Point2D) (float32, float32) {
		return float32(p.X * w), float32(p.Y * h)
	}

	for _, c := range entity.PoseConnections {
		x0, y0 := toPixel(landmarks.At(c.From))
		x1, y1 := toPixel(landmarks.At(c.To))
		strokeLine(z, x0, y0, x1, y1, float32(a.opts.LineWidth))
	}
	fill(z, img, ConnectionColor)

	for i := range landmarks {
		x, y := toPixel(landmarks[i].Point())
		circle(z, x, y, float32(a.opts.PointRadius))
	}
	fill(z, img, LandmarkColor)
}

func (a *Annotator) drawFeedback(img *image.RGBA, result entity.FeedbackResult) {
	col := NegativeColor
	if result.Category.Positive() {
		col = PositiveColor
	}

	a.faceMu.Lock()
	defer a.faceMu.Unlock()

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: a.face,
		Dot:  fixed.P(a.opts.TextOrigin.X, a.opts.TextOrigin.Y),
	}
	d.DrawString(result.Category.Message())

	if a.opts.ShowAccuracy {
		lineHeight := a.face.Metrics().Height.Ceil()
		d.Dot = fixed.P(a.opts.TextOrigin.X, a.opts.TextOrigin.Y+lineHeight)
		d.DrawString(fmt.Sprintf("Accuracy: %d%%", result.Accuracy))
	}
}

// fill paints every path accumulated in z and resets it for the next batch.
func fill(z *vector.Rasterizer, img *image.RGBA, col color.RGBA) {
	z.Draw(img, z.Bounds(), image.NewUniform(col), image.Point{})
	size := z.Size()
	z.Reset(size.X, size.Y)
	z.DrawOp = draw.Over
}

// strokeLine adds a quad of the given width around the segment. Every quad has
// the same orientation so overlapping segments never cancel out.
func strokeLine(z *vector.Rasterizer, x0, y0, x1, y1, width float32) {
	dx, dy := x1-x0, y1-y0
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length < 1e-3 {
		circle(z, x0, y0, width/2)
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2

	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
}

func circle(z *vector.Rasterizer, cx, cy, r float32) {
	const segments = 16
	z.MoveTo(cx+r, cy)
	for i := 1; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / segments
		z.LineTo(cx+r*float32(math.Cos(theta)), cy+r*float32(math.Sin(theta)))
	}
	z.ClosePath()
}
