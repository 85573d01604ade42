package embedding

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
)

// ImageFetchConfig bounds how much of an external image URL the
// service is willing to download and decode before embedding it.
type ImageFetchConfig struct {
	MaxBytes int64
	Timeout  time.Duration
	MaxDim   int
}

// FetchAndDecodeImage downloads url, enforcing a byte ceiling and
// timeout, sniffs its content type, decodes it, and downscales it to
// fit within MaxDim on its longest edge while preserving aspect ratio.
// The decoded image is returned for an ImageProvider to embed; this
// function never talks to the embedding backend itself.
func FetchAndDecodeImage(ctx context.Context, url string, cfg ImageFetchConfig) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidImageInput, "invalid image URL", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, searcherrors.UpstreamUnavailable(searcherrors.ErrCodeImageProviderFailed, "image fetch failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, searcherrors.UpstreamUnavailable(
			searcherrors.ErrCodeImageProviderFailed,
			fmt.Sprintf("image fetch returned status %d", resp.StatusCode),
			nil,
		)
	}

	limited := io.LimitReader(resp.Body, cfg.MaxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, searcherrors.UpstreamUnavailable(searcherrors.ErrCodeImageProviderFailed, "image read failed", err)
	}
	if int64(len(data)) > cfg.MaxBytes {
		return nil, searcherrors.InvalidInput(
			searcherrors.ErrCodeInvalidImageInput,
			fmt.Sprintf("image exceeds %d byte limit", cfg.MaxBytes),
			nil,
		)
	}

	contentType := http.DetectContentType(data)
	switch contentType {
	case "image/jpeg", "image/png", "image/gif":
	default:
		return nil, searcherrors.InvalidInput(
			searcherrors.ErrCodeInvalidImageInput,
			fmt.Sprintf("unsupported image content type %q", contentType),
			nil,
		)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidImageInput, "image decode failed", err)
	}

	return downscalePreservingAspect(img, cfg.MaxDim), nil
}

// downscalePreservingAspect returns img unchanged if it already fits
// within maxDim on its longest edge, otherwise returns a nearest-
// neighbor downscaled copy that preserves aspect ratio. Downscaling
// only (never upscaling) keeps small product thumbnails untouched.
func downscalePreservingAspect(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxDim
		newH = h * maxDim / w
	} else {
		newH = maxDim
		newW = w * maxDim / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		srcY := b.Min.Y + y*h/newH
		for x := 0; x < newW; x++ {
			srcX := b.Min.X + x*w/newW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}
