package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/pagemeta"
)

// WriteError means the report could not be written to storage. Fatal for the
// run, no retry.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("report write %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// Compiler lays out the two-section audit document: a cover/summary page and
// an annotated-screenshot page.
type Compiler struct {
	dir    string
	logger logging.Logger
}

// NewCompiler ensures dir exists and returns a Compiler writing into it.
func NewCompiler(dir string, logger logging.Logger) (*Compiler, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure report directory %s: %w", dir, err)
	}
	return &Compiler{
		dir:    dir,
		logger: logger.With(logging.Field{Key: "component", Value: "report"}),
	}, nil
}

// Compile writes the PDF for one run and returns its path. reportID must be
// unique per run; it becomes part of the filename so concurrent runs never
// collide. A critique with zero findings still compiles to a valid document.
func (c *Compiler) Compile(reportID, url string, meta *pagemeta.Meta, crit *critique.Critique, imageBytes []byte) (string, error) {
	path := filepath.Join(c.dir, fmt.Sprintf("audit_%s.pdf", reportID))

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Page 1: cover and executive summary.
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 24)
	pdf.CellFormat(0, 20, "Conversion Audit Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "I", 12)
	pdf.CellFormat(0, 10, tr("Analysis for: "+url), "", 1, "C", false, 0, "")
	if meta != nil && meta.Title != "" {
		pdf.CellFormat(0, 8, tr(meta.Title), "", 1, "C", false, 0, "")
	}
	pdf.Ln(15)

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Executive Summary", "", 1, "", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 8, tr(crit.Summary), "", "", false)

	if len(crit.Findings) > 0 {
		pdf.Ln(12)
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, "Key Findings Overview", "", 1, "", false, 0, "")
		pdf.Ln(3)

		for i, f := range crit.Findings {
			pdf.SetFont("Arial", "B", 12)
			if f.Category == critique.CategoryIssue {
				pdf.SetTextColor(200, 0, 0)
			} else {
				pdf.SetTextColor(0, 100, 0)
			}
			pdf.CellFormat(10, 8, fmt.Sprintf("#%d", i+1), "", 0, "", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.CellFormat(0, 8, tr(f.Label), "", 1, "", false, 0, "")

			pdf.SetFont("Arial", "", 11)
			pdf.MultiCell(0, 6, tr(fmt.Sprintf("%s at (%d, %d)", f.Category, f.X, f.Y)), "", "", false)
			pdf.Ln(2)
		}
	}

	// Page 2: annotated screenshot scaled to fit the page.
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Visual Annotations", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	if err := c.embedImage(pdf, imageBytes); err != nil {
		return "", err
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	c.logger.Info("compiled report",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "findings", Value: len(crit.Findings)})
	return path, nil
}

func (c *Compiler) embedImage(pdf *fpdf.Fpdf, imageBytes []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		return &WriteError{Err: fmt.Errorf("decode annotated image: %w", err)}
	}

	imgType := "PNG"
	if format == "jpeg" {
		imgType = "JPG"
	}

	opts := fpdf.ImageOptions{ImageType: imgType, ReadDpi: false}
	pdf.RegisterImageOptionsReader("annotated", opts, bytes.NewReader(imageBytes))

	// Fit within the printable area, preserving aspect ratio. Full-page
	// screenshots are usually much taller than wide.
	const maxW, maxH = 190.0, 240.0
	w := maxW
	h := w * float64(cfg.Height) / float64(cfg.Width)
	if h > maxH {
		h = maxH
		w = h * float64(cfg.Width) / float64(cfg.Height)
	}
	x := 10 + (maxW-w)/2

	pdf.ImageOptions("annotated", x, 30, w, h, false, opts, 0, "")
	return nil
}
