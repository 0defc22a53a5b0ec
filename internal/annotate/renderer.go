package annotate

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/fogleman/gg"

	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/logging"
)

// DecodeError means the input bytes are not a decodable raster image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("annotate: decode image: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Style is the fixed visual style for markers. The defaults reproduce the
// gold-on-black "viral" look: a black-outlined gold pointer line into the
// target, a filled target dot, and the label in a gold box.
type Style struct {
	Accent       string // hex fill color for lines, dots and label boxes
	Outline      string // hex outline color
	LineWidth    float64
	OutlineWidth float64
	DotRadius    float64
	LabelPad     float64
	AnchorOffset float64 // distance from target point to the label anchor
}

func DefaultStyle() Style {
	return Style{
		Accent:       "#FFD700",
		Outline:      "#000000",
		LineWidth:    4,
		OutlineWidth: 6,
		DotRadius:    10,
		LabelPad:     5,
		AnchorOffset: 90,
	}
}

// Renderer burns findings into a copy of a screenshot. Rendering is pure:
// identical inputs produce identical output bytes.
type Renderer struct {
	style  Style
	logger logging.Logger
}

func NewRenderer(style Style, logger logging.Logger) *Renderer {
	if style == (Style{}) {
		style = DefaultStyle()
	}
	return &Renderer{
		style:  style,
		logger: logger.With(logging.Field{Key: "component", Value: "annotate"}),
	}
}

// Annotate draws every finding, in order, onto a copy of imageBytes and
// returns the result as PNG. The input slice is never written to. Later
// findings may overlap earlier ones; there is no collision avoidance.
func (r *Renderer) Annotate(imageBytes []byte, findings []critique.Finding) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	dc := gg.NewContextForImage(src)
	w := float64(dc.Width())
	h := float64(dc.Height())

	for _, f := range findings {
		r.drawFinding(dc, f, w, h)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, dc.Image()); err != nil {
		return nil, fmt.Errorf("annotate: encode png: %w", err)
	}

	r.logger.Debug("annotated image",
		logging.Field{Key: "findings", Value: len(findings)},
		logging.Field{Key: "bytes", Value: out.Len()})
	return out.Bytes(), nil
}

func (r *Renderer) drawFinding(dc *gg.Context, f critique.Finding, w, h float64) {
	// The model's coordinates are trusted but clamped so stray values cannot
	// push markers off-canvas.
	tx := clamp(float64(f.X), 0, w-1)
	ty := clamp(float64(f.Y), 0, h-1)

	// Anchor the label toward the image center so it stays on-canvas.
	ax := tx + r.style.AnchorOffset
	if tx > w/2 {
		ax = tx - r.style.AnchorOffset
	}
	ay := ty - r.style.AnchorOffset
	if ty < h/2 {
		ay = ty + r.style.AnchorOffset
	}
	ax = clamp(ax, 0, w-1)
	ay = clamp(ay, 0, h-1)

	// Pointer line, outline first.
	dc.SetHexColor(r.style.Outline)
	dc.SetLineWidth(r.style.OutlineWidth)
	dc.DrawLine(ax, ay, tx, ty)
	dc.Stroke()

	dc.SetHexColor(r.style.Accent)
	dc.SetLineWidth(r.style.LineWidth)
	dc.DrawLine(ax, ay, tx, ty)
	dc.Stroke()

	// Target dot.
	dc.SetHexColor(r.style.Outline)
	dc.DrawCircle(tx, ty, r.style.DotRadius+2)
	dc.Fill()
	dc.SetHexColor(r.style.Accent)
	dc.DrawCircle(tx, ty, r.style.DotRadius)
	dc.Fill()

	label := strings.ToUpper(strings.TrimSpace(f.Label))
	if label == "" {
		return
	}

	tw, th := dc.MeasureString(label)
	pad := r.style.LabelPad

	// Keep the label box inside the canvas.
	lx := clamp(ax, pad, w-tw-pad)
	ly := clamp(ay, th+pad, h-pad)

	dc.SetHexColor(r.style.Accent)
	dc.DrawRectangle(lx-pad, ly-th-pad, tw+2*pad, th+2*pad)
	dc.Fill()
	dc.SetHexColor(r.style.Outline)
	dc.SetLineWidth(2)
	dc.DrawRectangle(lx-pad, ly-th-pad, tw+2*pad, th+2*pad)
	dc.Stroke()

	dc.SetHexColor(r.style.Outline)
	dc.DrawString(label, lx, ly)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
