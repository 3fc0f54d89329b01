package toothconv

// Removal of non-normalized lines from YOLO label files.

import (
	"os"
	"path/filepath"
	"strings"
)

// CleanResult counts the lines of the label files in one directory.
type CleanResult struct {
	Dir      string
	Files    int
	Original int
	Kept     int
}

// Removed is the number of removed lines.
func (r CleanResult) Removed() int {
	return r.Original - r.Kept
}

// CleanLabels rewrites every *.txt file in dir, keeping only lines that pass IsNormalizedLine, i.e.
// YOLO lines. Files that change are first copied to <file>.bak if backup is set.
func CleanLabels(dir string, backup bool) (CleanResult, error) {
	res := CleanResult{Dir: dir}

	files, err := filesByExtInDir(dir, ".txt")
	if err != nil {
		return res, err
	}

	for _, path := range files {
		lines, err := readLines(path)
		if err != nil {
			return res, err
		}

		kept := make([]string, 0, len(lines))
		for _, l := range lines {
			if IsNormalizedLine(l) {
				kept = append(kept, l)
			}
		}

		res.Files++
		res.Original += len(lines)
		res.Kept += len(kept)
		if len(kept) == len(lines) {
			continue
		}

		if backup {
			if err := copyFile(path+".bak", path); err != nil {
				return res, err
			}
		}
		if err := writeLines(path, kept); err != nil {
			return res, err
		}
	}

	return res, nil
}

// YOLOLabelDirs returns the existing label directories of a YOLO dataset at root, i.e.
// root/labels/<split> for each of splits.
func YOLOLabelDirs(root string, splits []string) []string {
	var dirs []string
	for _, s := range splits {
		if d := filepath.Join(root, "labels", s); isDir(d) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// RestoreBackups moves every <file>.bak in dir back to <file>, undoing CleanLabels. Returns the
// number of restored files.
func RestoreBackups(dir string) (int, error) {
	files, err := filesByExtInDir(dir, ".txt.bak")
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if err := os.Rename(f, strings.TrimSuffix(f, ".bak")); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}
