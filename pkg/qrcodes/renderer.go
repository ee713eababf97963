package qrcodes

import (
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

// Renderer turns a payload into PNG bytes. Available is checked before every
// issuance so a disabled renderer never surfaces as an error.
type Renderer interface {
	Available() bool
	Render(payload string) ([]byte, error)
}

// NewRenderer returns the PNG renderer, or a disabled one when QR codes are
// turned off.
func NewRenderer(cfg *config.Config) Renderer {
	if !cfg.QRCodeEnabled {
		return disabledRenderer{}
	}
	return &PNGRenderer{Size: cfg.QRCodeSize, Level: qrcode.Medium}
}

type PNGRenderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func (r *PNGRenderer) Available() bool { return true }

func (r *PNGRenderer) Render(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, r.Level, r.Size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %q", payload)
	}
	return png, nil
}

type disabledRenderer struct{}

func (disabledRenderer) Available() bool { return false }

func (disabledRenderer) Render(string) ([]byte, error) {
	return nil, errors.New("QR code rendering is disabled")
}
