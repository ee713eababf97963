package fileutils

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ImageExtensions are the image types accepted for covers and gallery images,
// in the order covers are looked up.
var ImageExtensions = []string{"jpg", "jpeg", "png", "webp"}

var (
	invalidFilenameRE = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRE      = regexp.MustCompile(`\s+`)
)

const maxFilenameBytes = 200

// SanitizeFilename strips characters that aren't safe in a file name or an
// object key segment. It never returns an empty string.
func SanitizeFilename(name string) string {
	name = invalidFilenameRE.ReplaceAllString(name, "")
	name = whitespaceRE.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")

	if len(name) > maxFilenameBytes {
		// Cut on a rune boundary.
		cut := 0
		for i := range name {
			if i > maxFilenameBytes {
				break
			}
			cut = i
		}
		name = strings.Trim(name[:cut], " .")
	}

	if name == "" {
		return "untitled"
	}
	return name
}

// HasImageExtension reports whether name ends in one of ImageExtensions,
// ignoring case.
func HasImageExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// StripExtension returns the base name of p without its final extension.
func StripExtension(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
