package ingest

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/lendshelf/lendshelf/pkg/books"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

var ErrNoMetadata = errors.New("no metadata and overwrite not requested")

// Cover files are looked up extension first, and for every extension 封面
// before cover.
var (
	coverExtensions = []string{"jpg", "jpeg", "png", "webp"}
	coverNames      = []string{"封面", "cover"}
)

type Options struct {
	// Overwrite lets books without metadata through with default fields. It
	// never changes the fields of a book that already exists.
	Overwrite bool
}

// Result is the outcome for one book directory.
type Result struct {
	Title   string `json:"title"`
	BookID  int    `json:"book_id,omitempty"`
	Created bool   `json:"created"`
	Err     error  `json:"-"`
}

type Report struct {
	Results []Result `json:"results"`
}

func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

type Importer struct {
	bookService *books.Service
}

func NewImporter(bookService *books.Service) *Importer {
	return &Importer{bookService: bookService}
}

// Import processes every book directory of the source in order. A failing book
// is logged and recorded and never stops the ones after it. Books are not
// imported in a shared transaction.
func (im *Importer) Import(ctx context.Context, sourcePath string, opts Options, log joblogs.Logger) (*Report, error) {
	src, err := Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	titles, err := src.Books()
	if err != nil {
		return nil, err
	}
	log.Info("importing books", logger.Data{"source": sourcePath, "books": len(titles), "overwrite": opts.Overwrite})

	report := &Report{Results: make([]Result, 0, len(titles))}
	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return report, errors.WithStack(err)
		}

		res := im.importBook(ctx, src, title, opts, log)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			log.Error("failed to import book", res.Err, logger.Data{"title": title})
			continue
		}
		log.Info("imported book", logger.Data{"title": title, "book_id": res.BookID, "created": res.Created})
	}

	log.Info("finished importing books", logger.Data{
		"total":     len(report.Results),
		"succeeded": report.Succeeded(),
		"failed":    report.Failed(),
	})
	return report, nil
}

func (im *Importer) importBook(ctx context.Context, src Source, title string, opts Options, log joblogs.Logger) Result {
	res := Result{Title: title}

	meta, err := ReadMetadata(src, title)
	if err != nil {
		res.Err = err
		return res
	}
	if meta == nil && !opts.Overwrite {
		res.Err = ErrNoMetadata
		return res
	}

	book, created, err := im.bookService.FindOrCreateBook(ctx, meta.Book(title))
	if err != nil {
		res.Err = err
		return res
	}
	res.BookID = book.ID
	res.Created = created

	columns := []string{}

	coverName, cover, err := findCover(src, title)
	if err != nil {
		res.Err = err
		return res
	}
	if coverName != "" {
		warnIfNotImage(log, title, coverName, cover)
		if err := im.bookService.SetCover(ctx, book, coverName, cover); err != nil {
			res.Err = errors.Wrap(err, "cover")
			return res
		}
		columns = append(columns, "cover_image")
	}

	entries, hasGallery, err := src.Gallery(title)
	if err != nil {
		res.Err = err
		return res
	}
	if hasGallery {
		images := make([]books.GalleryImage, 0, len(entries))
		for _, entry := range entries {
			data, _, err := src.ReadFile(title, entry.Name)
			if err != nil {
				res.Err = err
				return res
			}
			warnIfNotImage(log, title, entry.Name, data)
			images = append(images, books.GalleryImage{
				Filename: strings.TrimPrefix(entry.Name, GalleryDir+"/"),
				Caption:  books.GalleryCaption(entry.Name),
				Order:    entry.Index,
				Data:     data,
			})
		}
		if _, err := im.bookService.ReplaceGallery(ctx, book.ID, images); err != nil {
			res.Err = errors.Wrap(err, "gallery")
			return res
		}
	}

	if err := im.bookService.UpdateBook(ctx, book, books.UpdateBookOptions{Columns: columns}); err != nil {
		res.Err = err
		return res
	}
	return res
}

func findCover(src Source, title string) (string, []byte, error) {
	for _, ext := range coverExtensions {
		for _, name := range coverNames {
			filename := name + "." + ext
			data, ok, err := src.ReadFile(title, filename)
			if err != nil {
				return "", nil, err
			}
			if ok {
				return filename, data, nil
			}
		}
	}
	return "", nil, nil
}

func warnIfNotImage(log joblogs.Logger, title, name string, data []byte) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		log.Warn("file does not look like an image", logger.Data{"title": title, "file": name, "mime_type": mtype.String()})
	}
}
