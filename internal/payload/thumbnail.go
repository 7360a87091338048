package payload

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// Platform thumbnail limits: 2MB, recommended 1280x720.
const (
	thumbMaxBytes = 2 * 1024 * 1024
	thumbMaxWidth = 1280
)

// PrepareThumbnail decodes a thumbnail image, downscales anything wider than
// the platform bound, and re-encodes as JPEG under the size limit. Returns
// the encoded bytes and their content type.
func PrepareThumbnail(raw []byte) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode thumbnail: %w", err)
	}

	if img.Bounds().Dx() > thumbMaxWidth {
		img = imaging.Resize(img, thumbMaxWidth, 0, imaging.Lanczos)
	}

	quality := 90
	for quality >= 50 {
		buf := &bytes.Buffer{}
		if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, "", fmt.Errorf("encode thumbnail: %w", err)
		}
		if buf.Len() <= thumbMaxBytes {
			return buf.Bytes(), "image/jpeg", nil
		}
		quality -= 10
	}
	return nil, "", fmt.Errorf("thumbnail exceeds %d bytes even at lowest quality", thumbMaxBytes)
}
