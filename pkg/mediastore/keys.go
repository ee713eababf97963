package mediastore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/lendshelf/lendshelf/pkg/fileutils"
)

// CoverKey is a fresh key for a cover image, e.g.
// "book_covers/三国演义_cover_1f0c9a2b.jpg". Titles that sanitize to the same
// name, and successive covers of one book, never share an object.
func CoverKey(title, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return path.Join(PrefixCovers, fmt.Sprintf("%s_cover_%s.%s", fileutils.SanitizeFilename(title), token, ext))
}

// GalleryKey is where the image at position in a book's gallery is kept. name
// is the image's path inside the gallery directory, with every segment kept.
func GalleryKey(bookID, position int, name string) string {
	segments := strings.Split(strings.Trim(path.Clean("/"+name), "/"), "/")
	for i, segment := range segments {
		segments[i] = fileutils.SanitizeFilename(segment)
	}
	return path.Join(append([]string{PrefixGallery, fmt.Sprint(bookID), fmt.Sprint(position)}, segments...)...)
}

// QRCodeKey is where the rendered QR code of a copy is kept.
func QRCodeKey(copyID int) string {
	return path.Join(PrefixQRCodes, fmt.Sprintf("bookcopy_%d.png", copyID))
}
