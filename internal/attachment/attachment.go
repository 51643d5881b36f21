// Package attachment validates files uploaded with an acceptance. Images
// are downscaled and re-encoded as JPEG, PDFs are stored as-is.
package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// MaxDimension is the maximum width or height for stored images.
const MaxDimension = 1600

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// DefaultMaxBytes caps uploads when no limit is given.
const DefaultMaxBytes = 10 << 20

var (
	ErrTooLarge    = errors.New("attachment too large")
	ErrUnsupported = errors.New("unsupported attachment type")
	ErrEmpty       = errors.New("attachment is empty")
)

// Result is a processed attachment ready to store.
type Result struct {
	Name string
	Data []byte
	MIME string
}

// Process reads an uploaded file of at most maxBytes, sniffs its type from
// the content and normalises it. name is the client's filename; images get
// a .jpg extension.
func Process(r io.Reader, name string, maxBytes int64) (*Result, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	name = cleanName(name)

	// Sniff the type from the bytes, never from client headers.
	detected := http.DetectContentType(data)
	switch detected {
	case "application/pdf":
		return &Result{Name: name, Data: data, MIME: detected}, nil
	case "image/jpeg", "image/png":
	default:
		return nil, fmt.Errorf("%w: %s (JPEG, PNG or PDF accepted)", ErrUnsupported, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Result{
		Name: strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg",
		Data: buf.Bytes(),
		MIME: "image/jpeg",
	}, nil
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}

// downscale resizes the image so neither dimension exceeds maxDim,
// preserving aspect ratio. Smaller images are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
