package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/webp"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/mapping"
)

// jpegQuality matches the quality used when frames are re-encoded as JPEG.
const jpegQuality = 90

// sniffImage returns the image format of data ("jpeg", "png", "webp",
// "avif"), or "" when it is not a known still image.
func sniffImage(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case len(data) >= 12 && string(data[4:8]) == "ftyp" &&
		(string(data[8:12]) == "avif" || string(data[8:12]) == "avis"):
		return "avif"
	}
	return ""
}

// hasStartCode reports whether data begins with an Annex B start code.
func hasStartCode(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0, 0, 1}) || bytes.HasPrefix(data, []byte{0, 0, 0, 1})
}

// encodeFrame returns the bytes of one frame in the format declared by m.
// Still images are re-encoded when they can be decoded and the target is
// jpeg or png; any other mismatch is ErrUnsupportedMapping.
func encodeFrame(rel string, data []byte, m mapping.OtherMapping) ([]byte, error) {
	actual := sniffImage(data)

	if m.Type == mapping.TypeCompressedVideo {
		if actual != "" {
			return nil, fmt.Errorf("%w: %s: %s still image cannot be used as %s video",
				apperrors.ErrUnsupportedMapping, rel, actual, m.Format)
		}
		if (m.Format == "h264" || m.Format == "h265") && !hasStartCode(data) {
			return nil, fmt.Errorf("%w: %s: not an Annex B %s access unit",
				apperrors.ErrUnsupportedMapping, rel, m.Format)
		}
		return data, nil
	}

	if actual == m.Format {
		return data, nil
	}
	if actual == "" {
		return nil, fmt.Errorf("%w: %s: unrecognized image data for format %s",
			apperrors.ErrUnsupportedMapping, rel, m.Format)
	}

	img, err := decodeImage(actual, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: cannot convert %s to %s: %v",
			apperrors.ErrUnsupportedMapping, rel, actual, m.Format, err)
	}

	var buf bytes.Buffer
	switch m.Format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case "png":
		err = png.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("%w: %s: encoding %s is not supported, provide %s files",
			apperrors.ErrUnsupportedMapping, rel, m.Format, m.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s as %s: %w", rel, m.Format, err)
	}
	return buf.Bytes(), nil
}

func decodeImage(format string, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case "jpeg":
		return jpeg.Decode(r)
	case "png":
		return png.Decode(r)
	case "webp":
		return webp.Decode(r)
	}
	return nil, fmt.Errorf("no decoder for %s", format)
}
