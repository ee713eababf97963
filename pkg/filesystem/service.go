package filesystem

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/pkg/errors"
)

const (
	KindDirectory = "directory"
	KindZip       = "zip"
)

type BrowseOptions BrowseQuery

// Service lists the import sources below a root directory. Other files are
// left out since the importer can't read them.
type Service struct {
	root string
}

func NewService(root string) (*Service, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Service{root: abs}, nil
}

func (s *Service) Browse(opts BrowseOptions) (*BrowseResponse, error) {
	dir, err := s.resolve(opts.Path, "Browsing outside the import root")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcodes.NotFound("Directory")
		}
		return nil, errors.WithStack(err)
	}
	if !info.IsDir() {
		return nil, errcodes.NotFound("Directory")
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errcodes.Forbidden("Reading this directory")
		}
		return nil, errors.WithStack(err)
	}

	search := strings.ToLower(opts.Search)
	entries := []Entry{}
	for _, de := range dirEntries {
		name := de.Name()
		if !opts.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(name), search) {
			continue
		}

		kind := KindDirectory
		if !de.IsDir() {
			if !strings.EqualFold(filepath.Ext(name), ".zip") {
				continue
			}
			kind = KindZip
		}
		entries = append(entries, Entry{Name: name, Path: filepath.Join(dir, name), Kind: kind})
	}

	// Directories first, then archives, each by name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == KindDirectory
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	total := len(entries)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < total {
		end = start + opts.Limit
	}

	resp := &BrowseResponse{
		CurrentPath: dir,
		Entries:     entries[start:end],
		Total:       total,
		HasMore:     end < total,
	}
	if dir != s.root {
		resp.ParentPath = filepath.Dir(dir)
	}
	return resp, nil
}

// Within returns the absolute path of p when it lies inside the root.
func (s *Service) Within(p string) (string, error) {
	if p == "" {
		return "", errcodes.ValidationError("A path is required")
	}
	return s.resolve(p, "Importing from outside the import root")
}

// resolve turns p into a clean absolute path inside the root. An empty path
// is the root itself.
func (s *Service) resolve(p, action string) (string, error) {
	if p == "" {
		return s.root, nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errcodes.Forbidden(action)
	}
	return abs, nil
}
