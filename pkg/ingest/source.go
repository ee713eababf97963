package ingest

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lendshelf/lendshelf/pkg/fileutils"
	"github.com/pkg/errors"
)

// GalleryDir is the per-book subdirectory holding gallery images.
const GalleryDir = "轮播"

var ErrInvalidSource = errors.New("source is neither a directory nor a zip archive")

// GalleryEntry is a gallery file and its position in the sorted listing of the
// gallery directory.
type GalleryEntry struct {
	Name  string
	Index int
}

// Source is a directory or archive laid out as one top-level directory per
// book.
type Source interface {
	// Books returns the top-level directory names, sorted.
	Books() ([]string, error)
	// ReadFile reads a file relative to a book directory. The bool is false
	// when the file doesn't exist.
	ReadFile(book, name string) ([]byte, bool, error)
	// Gallery lists the book's gallery files. The bool is false when the book
	// has no gallery directory.
	Gallery(book string) ([]GalleryEntry, bool, error)
	Close() error
}

// Open picks the source implementation for p.
func Open(p string) (Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSource, "%s: %v", p, err)
	}
	if info.IsDir() {
		return &dirSource{root: p}, nil
	}

	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSource, "%s: %v", p, err)
	}
	return newZipSource(r), nil
}

type dirSource struct {
	root string
}

func (s *dirSource) Books() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	books := []string{}
	for _, e := range entries {
		if e.IsDir() {
			books = append(books, e.Name())
		}
	}
	sort.Strings(books)
	return books, nil
}

func (s *dirSource) ReadFile(book, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.root, book, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.WithStack(err)
	}
	return data, true, nil
}

// Gallery keeps only files with an image extension. Their index still counts
// the skipped entries.
func (s *dirSource) Gallery(book string) ([]GalleryEntry, bool, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, book, GalleryDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.WithStack(err)
	}
	// os.ReadDir sorts by filename.
	gallery := []GalleryEntry{}
	for i, e := range entries {
		if e.IsDir() || !fileutils.HasImageExtension(e.Name()) {
			continue
		}
		gallery = append(gallery, GalleryEntry{Name: path.Join(GalleryDir, e.Name()), Index: i})
	}
	return gallery, true, nil
}

func (s *dirSource) Close() error { return nil }

type zipSource struct {
	r     *zip.ReadCloser
	files map[string]*zip.File
}

func newZipSource(r *zip.ReadCloser) *zipSource {
	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}
	return &zipSource{r: r, files: files}
}

// Books includes directories that only exist implicitly through the paths of
// their files.
func (s *zipSource) Books() ([]string, error) {
	seen := map[string]struct{}{}
	books := []string{}
	for _, f := range s.r.File {
		top, _, ok := strings.Cut(f.Name, "/")
		if !ok || top == "" {
			continue
		}
		if _, dup := seen[top]; dup {
			continue
		}
		seen[top] = struct{}{}
		books = append(books, top)
	}
	sort.Strings(books)
	return books, nil
}

func (s *zipSource) ReadFile(book, name string) ([]byte, bool, error) {
	f, ok := s.files[book+"/"+name]
	if !ok || f.FileInfo().IsDir() {
		return nil, false, nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Gallery keeps every file under the gallery prefix, whatever its extension.
func (s *zipSource) Gallery(book string) ([]GalleryEntry, bool, error) {
	prefix := book + "/" + GalleryDir + "/"
	exists := false
	names := []string{}
	for _, f := range s.r.File {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		exists = true
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		names = append(names, strings.TrimPrefix(f.Name, book+"/"))
	}
	if !exists {
		return nil, false, nil
	}
	sort.Strings(names)
	gallery := make([]GalleryEntry, 0, len(names))
	for i, name := range names {
		gallery = append(gallery, GalleryEntry{Name: name, Index: i})
	}
	return gallery, true, nil
}

func (s *zipSource) Close() error {
	return errors.WithStack(s.r.Close())
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", f.Name)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", f.Name)
	}
	return data, nil
}
