package chart

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/ashureev/bateson-coach/internal/domain"
)

func TestRenderProducesPNG(t *testing.T) {
	r, err := NewRenderer(Config{Width: 320, Height: 200}, Labels{Title: "ignored"})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	for _, p := range []domain.ProgressCounters{
		{},
		domain.NewProgressCounters(map[domain.Stage]int{domain.StageFirstLearning: 3, domain.StageThirdLearning: 42}),
	} {
		data, err := r.Render(p)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("output is not a PNG: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 200 {
			t.Fatalf("unexpected size %v", b)
		}
	}
}

func TestNewRendererDefaults(t *testing.T) {
	r, err := NewRenderer(Config{}, Labels{})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	if w, h := r.Size(); w != defaultWidth || h != defaultHeight {
		t.Fatalf("size = %dx%d", w, h)
	}
	if r.labels != fallbackLabels {
		t.Fatalf("expected fallback labels without a font, got %+v", r.labels)
	}
}

func TestNewRendererMissingFont(t *testing.T) {
	if _, err := NewRenderer(Config{FontPath: "/nonexistent/font.ttf"}, Labels{}); err == nil {
		t.Fatal("expected error for missing font")
	}
}

func TestTickStep(t *testing.T) {
	tests := []struct {
		max, want int
	}{
		{0, 1}, {5, 1}, {6, 2}, {12, 5}, {42, 10}, {300, 100},
	}
	for _, tt := range tests {
		if got := tickStep(tt.max); got != tt.want {
			t.Errorf("tickStep(%d) = %d, want %d", tt.max, got, tt.want)
		}
	}
}
