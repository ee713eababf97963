package covers

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	titleRunesPerLine = 10
	titleMaxLines     = 3
	authorMaxRunes    = 15

	// Font sizes relative to the cover width.
	titleSizeRatio  = 200.0 / 2480.0
	authorSizeRatio = 120.0 / 2480.0

	// Without a configured font the cover is laid out on a smaller canvas with
	// the built-in bitmap face and scaled up.
	fallbackScale = 3
)

var (
	background  = color.NRGBA{250, 250, 240, 255}
	titleColor  = color.NRGBA{10, 10, 10, 255}
	authorColor = color.NRGBA{50, 50, 50, 255}
)

// Renderer draws a cover image from a book's title and author.
type Renderer interface {
	Render(title, author string) (image.Image, error)
}

// TextRenderer renders text-only covers: the title in 《》 near the top and
// the author near the bottom, centered on an off-white background.
type TextRenderer struct {
	width      int
	height     int
	titleFace  font.Face
	authorFace font.Face
	scale      int
}

// NewTextRenderer loads cfg.CoverFontPath when set. Fonts without CJK glyphs
// will skip those characters, so for Chinese titles a CJK font should be
// configured.
func NewTextRenderer(cfg *config.Config) (*TextRenderer, error) {
	r := &TextRenderer{width: cfg.CoverWidth, height: cfg.CoverHeight, scale: 1}

	if cfg.CoverFontPath == "" {
		r.titleFace = basicfont.Face7x13
		r.authorFace = basicfont.Face7x13
		r.scale = fallbackScale
		return r, nil
	}

	data, err := os.ReadFile(cfg.CoverFontPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cover font not found: %s", cfg.CoverFontPath)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse cover font %s", cfg.CoverFontPath)
	}

	r.titleFace, err = opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(cfg.CoverWidth) * titleSizeRatio,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	r.authorFace, err = opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(cfg.CoverWidth) * authorSizeRatio,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return r, nil
}

func (r *TextRenderer) Render(title, author string) (image.Image, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("cover title is empty")
	}

	w, h := r.width/r.scale, r.height/r.scale
	canvas := imaging.New(w, h, background)

	lineHeight := r.titleFace.Metrics().Height.Ceil() * 6 / 5
	y := h / 5
	for i, line := range WrapTitle(title) {
		if i == 0 {
			line = "《" + line + "》"
		}
		drawCentered(canvas, r.titleFace, titleColor, line, y+i*lineHeight)
	}

	if author = strings.TrimSpace(author); author != "" {
		drawCentered(canvas, r.authorFace, authorColor, "— "+truncateRunes(author, authorMaxRunes)+" —", h*7/10)
	}

	if r.scale == 1 {
		return canvas, nil
	}
	return imaging.Resize(canvas, r.width, r.height, imaging.NearestNeighbor), nil
}

// drawCentered draws text horizontally centered with its top edge at y.
func drawCentered(dst *image.NRGBA, face font.Face, c color.Color, text string, y int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(text)
	x := (fixed.I(dst.Bounds().Dx()) - width) / 2
	d.Dot = fixed.Point26_6{X: x, Y: fixed.I(y) + face.Metrics().Ascent}
	d.DrawString(text)
}

// WrapTitle splits a title into at most three lines of roughly ten characters.
// Words are kept together when the title has spaces, and longer runs are cut.
// When the title doesn't fit, the last line ends in an ellipsis.
func WrapTitle(title string) []string {
	var lines []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, string(cur))
			cur = nil
		}
	}

	for _, word := range strings.FieldsFunc(title, unicode.IsSpace) {
		runes := []rune(word)
		if len(cur) > 0 && len(cur)+1+len(runes) <= titleRunesPerLine {
			cur = append(cur, ' ')
			cur = append(cur, runes...)
			continue
		}
		flush()
		for len(runes) > titleRunesPerLine {
			lines = append(lines, string(runes[:titleRunesPerLine]))
			runes = runes[titleRunesPerLine:]
		}
		cur = append(cur, runes...)
	}
	flush()

	if len(lines) > titleMaxLines {
		lines = lines[:titleMaxLines]
		lines[titleMaxLines-1] += "…"
	}
	return lines
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// EncodePNG encodes a rendered cover or QR code.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
