package llm

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
)

// normalizeImage re-encodes arbitrary input (JPEG or PNG) as JPEG for the
// primary inline attachment path. Inputs that fail to decode are rejected
// rather than sent opaque.
func normalizeImage(data []byte) ([]byte, string, error) {
	mime := http.DetectContentType(data)
	if mime == "image/jpeg" {
		return data, mime, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image (%s): %w", mime, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// downscaleJPEG resizes the image to fit within maxW x maxH (preserving aspect
// ratio) and re-encodes it at a lower quality. Used as the fallback encoding
// path when the full-size attachment is rejected.
func downscaleJPEG(data []byte, maxW, maxH int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	small := scaleToFit(img, maxW, maxH)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleToFit performs nearest-neighbor downscaling. Good enough for a retry
// path whose purpose is shrinking payload size, and avoids an imaging
// dependency for one function.
func scaleToFit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		srcY := b.Min.Y + y*h/outH
		for x := 0; x < outW; x++ {
			srcX := b.Min.X + x*w/outW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}
