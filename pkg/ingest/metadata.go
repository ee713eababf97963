package ingest

import (
	"strings"

	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cast"
)

// MetadataFiles are checked in order. The .txt variant holds the same JSON.
var MetadataFiles = []string{"图书信息.json", "图书信息.txt"}

// Metadata is what a book directory's metadata file describes. Absent keys
// keep their defaults.
type Metadata struct {
	Author         string
	Description    string
	Keywords       string
	RecommendedAge *int
	CopiesCount    int
}

func defaultMetadata() *Metadata {
	return &Metadata{
		Author:      models.UnknownAuthor,
		CopiesCount: models.DefaultCopiesCount,
	}
}

// ReadMetadata returns nil when the book has no metadata file or the file
// holds an empty object.
func ReadMetadata(src Source, book string) (*Metadata, error) {
	for _, name := range MetadataFiles {
		data, ok, err := src.ReadFile(book, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		meta, err := ParseMetadata(data)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		return meta, nil
	}
	return nil, nil
}

// ParseMetadata decodes a JSON object, coercing values so that e.g. "3" and
// 3.0 are both accepted as copies_count.
func ParseMetadata(data []byte) (*Metadata, error) {
	raw := map[string]interface{}{}
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "metadata is not a JSON object")
	}
	if len(raw) == 0 {
		return nil, nil
	}

	meta := defaultMetadata()
	var err error
	if v, ok := raw["author"]; ok && v != nil {
		if meta.Author, err = cast.ToStringE(v); err != nil {
			return nil, errors.Wrap(err, "author")
		}
	}
	if v, ok := raw["description"]; ok && v != nil {
		if meta.Description, err = cast.ToStringE(v); err != nil {
			return nil, errors.Wrap(err, "description")
		}
	}
	if v, ok := raw["keywords"]; ok && v != nil {
		if meta.Keywords, err = cast.ToStringE(v); err != nil {
			return nil, errors.Wrap(err, "keywords")
		}
	}
	if v, ok := raw["recommended_age"]; ok && v != nil {
		age, err := cast.ToIntE(v)
		if err != nil {
			return nil, errors.Wrap(err, "recommended_age")
		}
		meta.RecommendedAge = &age
	}
	if v, ok := raw["copies_count"]; ok && v != nil {
		if meta.CopiesCount, err = cast.ToIntE(v); err != nil {
			return nil, errors.Wrap(err, "copies_count")
		}
		if meta.CopiesCount < 0 {
			return nil, errors.Errorf("copies_count must not be negative, got %d", meta.CopiesCount)
		}
	}
	return meta, nil
}

// Book builds a new book for title from the metadata. A nil Metadata uses the
// defaults.
func (m *Metadata) Book(title string) *models.Book {
	if m == nil {
		m = defaultMetadata()
	}
	keywords := m.Keywords
	return &models.Book{
		Title:          title,
		Author:         m.Author,
		Description:    m.Description,
		Keywords:       &keywords,
		RecommendedAge: m.RecommendedAge,
		CopiesCount:    m.CopiesCount,
	}
}
