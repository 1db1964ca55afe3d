package job

import (
	"errors"
	"testing"

	"roundify/config"
	"roundify/models"
)

func TestNormalizeOptions(t *testing.T) {
	cfg := config.Default()
	src := models.SourceMeta{Duration: 30}

	got, err := NormalizeOptions(&cfg, src, models.ClipOptions{Duration: 15, Offset: 10, Size: 641, Token: " t ", Encoder: "TRIM"})
	if err != nil {
		t.Fatalf("NormalizeOptions failed: %v", err)
	}
	if got.Size != 640 {
		t.Errorf("Expected odd size rounded down to 640, got %d", got.Size)
	}
	if got.Encoder != "trim" {
		t.Errorf("Expected encoder lower-cased, got %q", got.Encoder)
	}
	if got.Token != "" || got.Chat != "" || got.Delivers() {
		t.Errorf("Expected delivery dropped without chat, got %+v", got)
	}

	got, _ = NormalizeOptions(&cfg, src, models.ClipOptions{Duration: 1})
	if got.Size != 640 || got.Encoder != "round" {
		t.Errorf("Expected defaults, got %+v", got)
	}
}

func TestNormalizeOptionsBoundaries(t *testing.T) {
	cfg := config.Default()
	src := models.SourceMeta{Duration: 30}

	for _, tc := range []struct {
		offset, duration float64
		ok               bool
	}{
		{0, 30, true},
		{29.5, 0.5, true},
		{29.5, 0.51, false},
		{0, 60.0001, false},
		{30, 0.001, false},
	} {
		_, err := NormalizeOptions(&cfg, src, models.ClipOptions{Offset: tc.offset, Duration: tc.duration})
		if tc.ok && err != nil {
			t.Errorf("offset=%v duration=%v: unexpected error %v", tc.offset, tc.duration, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("offset=%v duration=%v: expected ErrInvalidOptions, got %v", tc.offset, tc.duration, err)
		}
	}
}
