// Package imagemeta extracts technical metadata from image files and
// prepares downscaled copies for analysis.
package imagemeta

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	heicexif "github.com/dsoprea/go-heic-exif-extractor"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	pngstructure "github.com/dsoprea/go-png-image-structure"
	tiffstructure "github.com/dsoprea/go-tiff-image-structure"
	riimage "github.com/dsoprea/go-utility/image"
)

// Meta holds the technical attributes read from a file's embedded metadata.
// Every field is best-effort; absence is not an error.
type Meta struct {
	Width       int
	Height      int
	Format      string
	SizeBytes   int64
	ColorSpace  string
	HasAlpha    bool
	CaptureTime *time.Time
	Latitude    *float64
	Longitude   *float64
}

type exifParser interface {
	Parse(rs io.ReadSeeker, size int) (ec riimage.MediaContext, err error)
}

func parserForExt(ext string) exifParser {
	switch ext {
	case ".jpg", ".jpeg":
		return jpegstructure.NewJpegMediaParser()
	case ".png":
		return pngstructure.NewPngMediaParser()
	case ".tiff", ".tif":
		return tiffstructure.NewTiffMediaParser()
	case ".heic", ".heif", ".avif":
		return heicexif.NewHeicExifMediaParser()
	default:
		// Fall back to brute-force EXIF search
		return nil
	}
}

// Extract reads dimensions, format and embedded EXIF metadata from an image
// file. A missing or malformed capture timestamp leaves CaptureTime nil.
func Extract(path string) (Meta, error) {
	var meta Meta

	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return meta, fmt.Errorf("stat image: %w", err)
	}
	meta.SizeBytes = info.Size()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return meta, fmt.Errorf("decode image config: %w", err)
	}
	meta.Width = cfg.Width
	meta.Height = cfg.Height
	meta.Format = format
	meta.ColorSpace, meta.HasAlpha = describeColorModel(cfg)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return meta, fmt.Errorf("rewind image: %w", err)
	}

	readExif(f, info.Size(), strings.ToLower(filepath.Ext(path)), &meta)
	return meta, nil
}

func describeColorModel(cfg image.Config) (string, bool) {
	switch cfg.ColorModel {
	case color.YCbCrModel:
		return "YCbCr", false
	case color.RGBAModel:
		return "RGBA", true
	case color.NRGBAModel:
		return "RGBA", true
	case color.RGBA64Model, color.NRGBA64Model:
		return "RGBA", true
	case color.GrayModel, color.Gray16Model:
		return "Grayscale", false
	case color.CMYKModel:
		return "CMYK", false
	default:
		return "", false
	}
}

// readExif is best-effort: any failure leaves the EXIF-derived fields unset.
func readExif(rs io.ReadSeeker, size int64, ext string, meta *Meta) {
	var rawExif []byte

	if parser := parserForExt(ext); parser != nil {
		if mc, err := parser.Parse(rs, int(size)); err == nil {
			_, rawExif, _ = mc.Exif()
		}
	}
	if len(rawExif) == 0 {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return
		}
		if data, err := exif.SearchAndExtractExifWithReader(rs); err == nil {
			rawExif = data
		}
	}
	if len(rawExif) == 0 {
		return
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return
	}

	tags := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.TagName == "" {
			continue
		}
		value := strings.ReplaceAll(entry.FormattedFirst, "\x00", "")
		if value != "" {
			tags[entry.TagName] = value
		}
	}

	if t, ok := parseExifTime(tags["DateTimeOriginal"]); ok {
		meta.CaptureTime = &t
	} else if t, ok := parseExifTime(tags["DateTime"]); ok {
		meta.CaptureTime = &t
	}

	readGPS(rawExif, meta)
}

func parseExifTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006:01:02 15:04:05", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func readGPS(rawExif []byte, meta *Meta) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return
	}

	ifd, err := index.RootIfd.ChildWithIfdPath(exifcommon.IfdGpsInfoStandardIfdIdentity)
	if err != nil {
		return
	}

	gi, err := ifd.GpsInfo()
	if err != nil {
		return
	}

	lat := gi.Latitude.Decimal()
	lon := gi.Longitude.Decimal()
	meta.Latitude = &lat
	meta.Longitude = &lon
}

// Downscale produces a temporary aspect-preserving copy of an image whose
// longest side is at most maxDim, for analysis only. It never upscales.
// The caller must invoke cleanup to remove the temporary file.
func Downscale(path string, maxDim int) (string, func(), error) {
	src, err := imaging.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return path, func() {}, nil
	}

	resized := imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)

	tmp, err := os.CreateTemp("", "wildtrail-resized-*.jpg")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := imaging.Save(resized, tmpPath, imaging.JPEGQuality(90)); err != nil {
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("save resized copy: %w", err)
	}

	return tmpPath, func() { os.Remove(tmpPath) }, nil
}
