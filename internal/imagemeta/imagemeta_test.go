package imagemeta

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestExtract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 8, 6)

	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if meta.Width != 8 || meta.Height != 6 {
		t.Errorf("dimensions = %dx%d, want 8x6", meta.Width, meta.Height)
	}
	if meta.Format != "png" {
		t.Errorf("Format = %q, want png", meta.Format)
	}
	if meta.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", meta.SizeBytes)
	}
	if !meta.HasAlpha {
		t.Error("HasAlpha = false for an RGBA image")
	}
	// No EXIF data: the timestamp and GPS fields stay unset, not errors.
	if meta.CaptureTime != nil {
		t.Errorf("CaptureTime = %v, want nil", meta.CaptureTime)
	}
	if meta.Latitude != nil || meta.Longitude != nil {
		t.Error("GPS coordinates set without EXIF data")
	}
}

func TestExtract_MissingFile(t *testing.T) {
	if _, err := Extract(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Error("Extract on a missing file should error")
	}
}

func TestParseExifTime(t *testing.T) {
	tests := []struct {
		value string
		want  time.Time
		ok    bool
	}{
		{"2026:01:14 06:30:00", time.Date(2026, time.January, 14, 6, 30, 0, 0, time.UTC), true},
		{"  2026:01:14 06:30:00  ", time.Date(2026, time.January, 14, 6, 30, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"2026-01-14 06:30:00", time.Time{}, false},
		{"0000:00:00 00:00:00", time.Time{}, false},
		{"garbage", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseExifTime(tt.value)
		if ok != tt.ok {
			t.Errorf("parseExifTime(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("parseExifTime(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestDownscale_NeverUpscales(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	writePNG(t, path, 10, 10)

	got, cleanup, err := Downscale(path, 100)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	defer cleanup()

	if got != path {
		t.Errorf("Downscale returned %q, want the original path for an in-bounds image", got)
	}
}

func TestDownscale_FitsWithinMaxDim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.png")
	writePNG(t, path, 120, 60)

	got, cleanup, err := Downscale(path, 50)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}

	if got == path {
		t.Fatal("Downscale returned the original path for an oversized image")
	}

	f, err := os.Open(got)
	if err != nil {
		t.Fatalf("open resized copy: %v", err)
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		t.Fatalf("decode resized copy: %v", err)
	}
	// Aspect ratio preserved: 120x60 fit into 50 is 50x25.
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("resized dimensions = %dx%d, want 50x25", cfg.Width, cfg.Height)
	}

	cleanup()
	if _, err := os.Stat(got); !os.IsNotExist(err) {
		t.Error("cleanup did not remove the temporary copy")
	}
}
