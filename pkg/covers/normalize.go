package covers

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Shrink scales JPEG and PNG images wider than maxWidth down to maxWidth,
// keeping the aspect ratio and applying EXIF orientation. Other formats,
// images that already fit, and maxWidth <= 0 return data unchanged.
func Shrink(data []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		return data, nil
	}

	var format imaging.Format
	switch mimetype.Detect(data).String() {
	case "image/jpeg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	default:
		return data, nil
	}

	cfg, _, err := imageConfig(data)
	if err != nil {
		return nil, err
	}
	if cfg.Width <= maxWidth {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
