package toothconv

// Locating images within the split directories of a dataset.

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultSplits are the split directory names searched when none are configured.
var DefaultSplits = []string{"train", "val", "test", "Training", "Validation", "Testing"}

// imageSubdirs are the directories, relative to a split directory, that may hold its images.
var imageSubdirs = []string{"images", "Images", ""}

// imageLocator finds images below root/<split>/<image subdir>.
type imageLocator struct {
	root   string
	splits []string
	stems  map[string]map[string]string // dir -> file stem -> file name
}

func newImageLocator(root string, splits []string) *imageLocator {
	if len(splits) == 0 {
		splits = DefaultSplits
	}
	return &imageLocator{
		root:   root,
		splits: splits,
		stems:  make(map[string]map[string]string),
	}
}

// locate returns the split and path of the image of e. Only e.Split is searched if it is set.
//
// The exact file name is tried first, then the same stem with a known image extension, then any
// file with the same stem.
func (l *imageLocator) locate(e ImageEntry) (split, path string, err error) {
	splits := l.splits
	if e.Split != "" {
		splits = []string{e.Split}
	}
	name := filepath.FromSlash(e.FileName)
	stem := e.Stem()

	for _, s := range splits {
		for _, sub := range imageSubdirs {
			dir := filepath.Join(l.root, s, sub)
			if !isDir(dir) {
				continue
			}
			if p := filepath.Join(dir, name); isFile(p) {
				return s, p, nil
			}
			for _, ext := range imageExtensions {
				if p := filepath.Join(dir, stem+ext); isFile(p) {
					return s, p, nil
				}
			}
			if n, ok := l.stemsInDir(dir)[stem]; ok {
				return s, filepath.Join(dir, n), nil
			}
		}
	}

	return "", "", errors.Wrapf(ErrMissingImage, "%q not found in splits %v of %q", e.FileName,
		splits, l.root)
}

// stemsInDir lists dir once and maps file stems to file names. The first name in lexical order
// wins for duplicate stems.
func (l *imageLocator) stemsInDir(dir string) map[string]string {
	if m, ok := l.stems[dir]; ok {
		return m
	}
	m := make(map[string]string)
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			_, stem, _ := splitPath(e.Name())
			if _, ok := m[stem]; !ok {
				m[stem] = e.Name()
			}
		}
	}
	l.stems[dir] = m
	return m
}
