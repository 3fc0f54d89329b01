package toothconv

// The intermediate annotation representation shared by all sources and writers.

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BoxFormat is the layout of the four geometry values of a source bounding box.
type BoxFormat int

// The known box layouts.
const (
	XYXY   BoxFormat = iota // x1, y1, x2, y2
	XYWH                    // left, top, width, height
	CXCYWH                  // center x, center y, width, height
)

// ParseBoxFormat parses the names used in annotation exports. The empty string is XYXY.
func ParseBoxFormat(s string) (BoxFormat, error) {
	switch strings.ToLower(s) {
	case "", "xyxy":
		return XYXY, nil
	case "xywh":
		return XYWH, nil
	case "cxcywh":
		return CXCYWH, nil
	}
	return XYXY, fmt.Errorf("unknown box format %q", s)
}

// Box is an axis-aligned bounding box.
type Box struct {
	Coords     [4]float64 // x1, y1, x2, y2 offsets from the top-left corner.
	Normalized bool       // Coords are ratios of the image size rather than pixels.
}

// NewBox converts the values v, laid out as f, to a Box.
func NewBox(v [4]float64, f BoxFormat, normalized bool) Box {
	b := Box{Normalized: normalized}
	switch f {
	case XYWH:
		b.Coords = [4]float64{v[0], v[1], v[0] + v[2], v[1] + v[3]}
	case CXCYWH:
		hw, hh := v[2]*0.5, v[3]*0.5
		b.Coords = [4]float64{v[0] - hw, v[1] - hh, v[0] + hw, v[1] + hh}
	default:
		b.Coords = v
	}
	return b
}

// Width is the box width from b.Coords.
func (b Box) Width() float64 {
	return b.Coords[2] - b.Coords[0]
}

// Height is the box height from b.Coords.
func (b Box) Height() float64 {
	return b.Coords[3] - b.Coords[1]
}

// Annotation is a single tooth bounding box.
type Annotation struct {
	Box   Box
	Tooth int // FDI code as found in the source; not yet validated.
}

// ImageEntry groups the annotations of one image.
type ImageEntry struct {
	Annotations []Annotation
	FileName    string // Image file name, optionally with a path relative to the split dir.
	Height      int    // Pixel height, zero if the source does not provide it.
	Split       string // Split directory name, empty if it must be located.
	Width       int    // Pixel width, zero if the source does not provide it.
}

// Stem is the image file name without directory and extension.
func (e ImageEntry) Stem() string {
	base := filepath.Base(filepath.FromSlash(e.FileName))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Dataset is the parsed content of an annotation source.
type Dataset struct {
	ClassLabels map[int]string // Optional human-readable labels by FDI code.
	Images      []ImageEntry
	Rejects     []error // Source entries that were skipped while parsing.
}

// mergeEntries merges entries that refer to the same image (and split), keeping the first
// occurrence's position and appending the annotations in input order.
func mergeEntries(entries []ImageEntry) []ImageEntry {
	seen := make(map[string]int, len(entries))
	merged := entries[:0:0]
	for _, e := range entries {
		key := e.Split + "\x00" + e.FileName
		if i, ok := seen[key]; ok {
			m := &merged[i]
			m.Annotations = append(m.Annotations, e.Annotations...)
			if m.Width == 0 && m.Height == 0 {
				m.Width, m.Height = e.Width, e.Height
			}
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, e)
	}
	return merged
}
