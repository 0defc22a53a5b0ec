package annotate_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/pagelens/pagelens/internal/annotate"
	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/testutil"
)

func newRenderer(t *testing.T) *annotate.Renderer {
	t.Helper()
	return annotate.NewRenderer(annotate.DefaultStyle(), &testutil.DummyLogger{})
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode annotated output: %v", err)
	}
	return img
}

func TestAnnotate_DrawsMarkerAtFinding(t *testing.T) {
	t.Parallel()
	r := newRenderer(t)
	src := testutil.PNG(400, 400)

	out, err := r.Annotate(src, []critique.Finding{
		{X: 200, Y: 200, Label: "weak headline", Category: critique.CategoryIssue},
	})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	img := decode(t, out)
	if got := img.Bounds(); got.Dx() != 400 || got.Dy() != 400 {
		t.Fatalf("output dimensions changed: %v", got)
	}

	// The target dot covers the finding point, so (200,200) must no longer be
	// the white background.
	r8, g8, b8, _ := img.At(200, 200).RGBA()
	if r8 == 0xffff && g8 == 0xffff && b8 == 0xffff {
		t.Error("expected a marker at the finding coordinates, found background")
	}
}

func TestAnnotate_Deterministic(t *testing.T) {
	t.Parallel()
	r := newRenderer(t)
	src := testutil.PNG(300, 300)
	findings := []critique.Finding{
		{X: 50, Y: 60, Label: "cta hidden", Category: critique.CategoryIssue},
		{X: 250, Y: 240, Label: "low contrast", Category: critique.CategorySuggestion},
	}

	first, err := r.Annotate(src, findings)
	if err != nil {
		t.Fatalf("first Annotate: %v", err)
	}
	second, err := r.Annotate(src, findings)
	if err != nil {
		t.Fatalf("second Annotate: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical inputs produced different output bytes")
	}
}

func TestAnnotate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	r := newRenderer(t)
	src := testutil.PNG(200, 200)
	orig := append([]byte(nil), src...)

	if _, err := r.Annotate(src, []critique.Finding{{X: 100, Y: 100, Label: "x"}}); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if !bytes.Equal(src, orig) {
		t.Error("input bytes were mutated")
	}
}

func TestAnnotate_ClampsOutOfRangeCoordinates(t *testing.T) {
	t.Parallel()
	r := newRenderer(t)
	src := testutil.PNG(100, 100)

	out, err := r.Annotate(src, []critique.Finding{
		{X: -500, Y: 9999, Label: "off canvas"},
		{X: 5000, Y: -5, Label: "also off"},
	})
	if err != nil {
		t.Fatalf("Annotate with out-of-range coords: %v", err)
	}
	img := decode(t, out)
	if got := img.Bounds(); got.Dx() != 100 || got.Dy() != 100 {
		t.Fatalf("output dimensions changed: %v", got)
	}
}

func TestAnnotate_NoFindingsKeepsImage(t *testing.T) {
	t.Parallel()
	r := newRenderer(t)
	src := testutil.PNG(120, 80)

	out, err := r.Annotate(src, nil)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	img := decode(t, out)
	if got := img.Bounds(); got.Dx() != 120 || got.Dy() != 80 {
		t.Fatalf("output dimensions changed: %v", got)
	}
}

func TestAnnotate_CorruptInputIsDecodeError(t *testing.T) {
	t.Parallel()
	r := newRenderer(t)

	_, err := r.Annotate([]byte("definitely not a png"), nil)
	var decodeErr *annotate.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
}
