package toothconv

// Per-split "Key Points Annotations" layout with a tooth metadata table.
//
// Each split directory holds "Key Points Annotations/<id>.json", a document containing a list of
// [x1, y1, x2, y2] pixel boxes, and "Images/<id>.<ext>". The metadata table in the dataset root
// lists, per image id, the FDI codes of the boxes in the same order.

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	keyPointsDir      = "Key Points Annotations"
	keyPointsMetadata = "characteristics_of_distributions.txt"
)

// boxListKeys are searched first, in order, when looking for the box list in a document.
var boxListKeys = []string{"data", "annotations", "boxes", "bboxes", "bounding_boxes", "bbox"}

var fdiListSep = regexp.MustCompile(`[;,\s]+`)

// DefaultExcludedIDs are the image ids left out when converting the public tooth dataset.
var DefaultExcludedIDs = []string{"863", "777", "762", "75"}

// FromKeyPoints reads the key point annotations of all splits found below root.
//
// A missing or unreadable metadata table is fatal. Problems with individual annotation files are
// recorded in Dataset.Rejects and the file is skipped. Annotation files of the excluded image ids
// are ignored.
func FromKeyPoints(root string, splits, excluded []string) (Dataset, error) {
	if len(splits) == 0 {
		splits = DefaultSplits
	}

	metadata, err := parseToothMetadata(filepath.Join(root, keyPointsMetadata))
	if err != nil {
		return Dataset{}, err
	}
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}

	var ds Dataset
	for _, split := range splits {
		dir := filepath.Join(root, split, keyPointsDir)
		if !isDir(dir) {
			continue
		}
		files, err := filesByExtInDir(dir, ".json")
		if err != nil {
			return Dataset{}, err
		}
		for _, path := range files {
			if _, id, _ := splitPath(path); skip[id] {
				continue
			}
			entry, err := parseKeyPointsFile(path, metadata)
			if err != nil {
				ds.Rejects = append(ds.Rejects, err)
				continue
			}
			entry.Split = split
			ds.Images = append(ds.Images, entry)
		}
	}

	return ds, nil
}

// parseToothMetadata parses the tab separated metadata table at path. The first line is a header;
// column 1 is the image id and column 4 the list of FDI codes.
func parseToothMetadata(path string) (map[string][]int, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedInput, err.Error())
	}
	if len(lines) == 0 {
		return nil, errors.Wrapf(ErrMalformedInput, "metadata table %q is empty", path)
	}

	metadata := make(map[string][]int, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 4 {
			continue
		}

		id := strings.TrimSpace(parts[0])
		var codes []int
		for _, s := range fdiListSep.Split(strings.TrimSpace(parts[3]), -1) {
			if s == "" {
				continue
			}
			code, err := strconv.Atoi(s)
			if err != nil {
				code = -1 // Rejected later as an invalid class.
			}
			codes = append(codes, code)
		}
		metadata[id] = codes
	}

	return metadata, nil
}

// parseKeyPointsFile pairs the boxes in the annotation file at path with the tooth codes of the
// image in metadata.
func parseKeyPointsFile(path string, metadata map[string][]int) (ImageEntry, error) {
	_, id, _ := splitPath(path)

	enc, err := os.ReadFile(path)
	if err != nil {
		return ImageEntry{}, errors.Wrapf(ErrMalformedInput, "cannot read %q: %v", path, err)
	}
	var doc interface{}
	if err := json.Unmarshal(enc, &doc); err != nil {
		return ImageEntry{}, errors.Wrapf(ErrMalformedInput, "failed to parse %q: %v", path, err)
	}

	var boxes [][4]float64
	if m, ok := doc.(map[string]interface{}); ok {
		if data, ok := m["data"]; ok {
			boxes = findBoxList(data)
		}
	}
	if boxes == nil {
		boxes = findBoxList(doc)
	}
	if boxes == nil {
		return ImageEntry{}, errors.Wrapf(ErrMalformedInput, "no bounding box list in %q", path)
	}

	codes := metadata[id]
	if len(codes) == 0 {
		return ImageEntry{}, errors.Wrapf(ErrInvalidClass, "no tooth numbers for image %q", id)
	}
	if len(codes) != len(boxes) {
		return ImageEntry{}, errors.Wrapf(ErrMalformedInput,
			"image %q has %d tooth numbers but %d boxes", id, len(codes), len(boxes))
	}

	entry := ImageEntry{
		Annotations: make([]Annotation, len(boxes)),
		FileName:    id,
	}
	entry.Width, entry.Height = documentImageSize(doc)
	for i, b := range boxes {
		entry.Annotations[i] = Annotation{Box: Box{Coords: b}, Tooth: codes[i]}
	}

	return entry, nil
}

// findBoxList returns the first list of 4-number lists in v. Well-known keys are searched before
// the remaining keys, which are visited in lexical order.
func findBoxList(v interface{}) [][4]float64 {
	switch v := v.(type) {
	case []interface{}:
		if boxes, ok := asBoxList(v); ok {
			return boxes
		}
		for _, el := range v {
			if boxes := findBoxList(el); boxes != nil {
				return boxes
			}
		}
	case map[string]interface{}:
		for _, k := range boxListKeys {
			if el, ok := v[k]; ok {
				if boxes := findBoxList(el); boxes != nil {
					return boxes
				}
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if boxes := findBoxList(v[k]); boxes != nil {
				return boxes
			}
		}
	}
	return nil
}

// asBoxList converts l if it is a non-empty list of 4-number lists.
func asBoxList(l []interface{}) ([][4]float64, bool) {
	if len(l) == 0 {
		return nil, false
	}
	boxes := make([][4]float64, len(l))
	for i, el := range l {
		nums, ok := el.([]interface{})
		if !ok || len(nums) != 4 {
			return nil, false
		}
		for j, n := range nums {
			f, ok := n.(float64)
			if !ok {
				return nil, false
			}
			boxes[i][j] = f
		}
	}
	return boxes, true
}

// documentImageSize looks for numeric width and height at the top level of doc or in its "image"
// or "meta" objects. Returns zeros if none is found.
func documentImageSize(doc interface{}) (width, height int) {
	m, ok := doc.(map[string]interface{})
	if !ok {
		return 0, 0
	}
	for _, obj := range []interface{}{m, m["image"], m["meta"]} {
		o, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		w, wOK := o["width"].(float64)
		h, hOK := o["height"].(float64)
		if wOK && hOK {
			return int(w), int(h)
		}
	}
	return 0, 0
}
