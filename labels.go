package toothconv

// Raw and YOLO label line formats.

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultDecimals is the number of decimal places written for normalized values.
const DefaultDecimals = 6

type labelFormat int

const (
	rawFormat labelFormat = iota
	yoloFormat
)

// String is also the sub-directory name used when both formats are written.
func (f labelFormat) String() string {
	if f == yoloFormat {
		return "yolo"
	}
	return "raw"
}

// YOLOBox is a bounding box as center and size, normalized to [0, 1] by the image size.
type YOLOBox struct {
	CX, CY, W, H float64
}

// Normalize converts b to YOLO geometry for an image of the given pixel size. The size is ignored
// if b is already normalized.
//
// Corners that lie outside the image by no more than tolerance (as a fraction of the image size)
// are clamped to the image and clamped is set. Corners further outside yield ErrOutOfBounds.
func Normalize(b Box, width, height int, tolerance float64) (y YOLOBox, clamped bool, err error) {
	if err := checkGeometry(b); err != nil {
		return y, false, err
	}

	c := b.Coords
	if !b.Normalized {
		if width <= 0 || height <= 0 {
			return y, false, errors.Wrapf(ErrMissingImage, "unknown image size %dx%d", width, height)
		}
		w, h := float64(width), float64(height)
		c = [4]float64{c[0] / w, c[1] / h, c[2] / w, c[3] / h}
	}

	for i, v := range c {
		if v < -tolerance || v > 1+tolerance {
			return y, false, errors.Wrapf(ErrOutOfBounds, "box %v exceeds the image by more than %g",
				b.Coords, tolerance)
		}
		if v < 0 || v > 1 {
			c[i] = math.Min(math.Max(v, 0), 1)
			clamped = true
		}
	}
	if c[2] <= c[0] || c[3] <= c[1] {
		return y, false, errors.Wrapf(ErrOutOfBounds, "box %v lies on the image border", b.Coords)
	}

	y = YOLOBox{
		CX: (c[0] + c[2]) / 2,
		CY: (c[1] + c[3]) / 2,
		W:  c[2] - c[0],
		H:  c[3] - c[1],
	}
	return y, clamped, nil
}

// FormatYOLOLine formats "<class> <cx> <cy> <w> <h>" with the given number of decimals.
func FormatYOLOLine(class int, y YOLOBox, decimals int) string {
	return fmt.Sprintf("%d %.*f %.*f %.*f %.*f", class, decimals, y.CX, decimals, y.CY, decimals,
		y.W, decimals, y.H)
}

// FormatRawLine formats "<fdi> <x1> <y1> <x2> <y2>" in source units. Pixel coordinates are
// truncated to integers; normalized coordinates use the given number of decimals.
func FormatRawLine(tooth int, b Box, decimals int) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(tooth))
	for _, v := range b.Coords {
		sb.WriteByte(' ')
		if b.Normalized {
			sb.WriteString(strconv.FormatFloat(v, 'f', decimals, 64))
		} else {
			sb.WriteString(strconv.Itoa(int(v)))
		}
	}
	return sb.String()
}

// LabelLine is a parsed label file line of either format.
type LabelLine struct {
	Class  string
	Values [4]float64
	Raw    bool // All geometry tokens are integers, i.e. pixel coordinates of a raw line.
}

// ParseLabelLine parses a line with a class token followed by four numbers.
func ParseLabelLine(line string) (LabelLine, error) {
	var l LabelLine

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("want 5 fields, got %d in %q", len(tokens), line)
	}

	l.Class = tokens[0]
	l.Raw = true
	for i, tok := range tokens[1:] {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return l, fmt.Errorf("unexpected values in %q: %v", line, err)
		}
		l.Values[i] = v
		if strings.ContainsAny(tok, ".eE") {
			l.Raw = false
		}
	}

	return l, nil
}

// IsNormalizedLine reports whether line is a five-field label line with all geometry in [0, 1].
func IsNormalizedLine(line string) bool {
	l, err := ParseLabelLine(line)
	if err != nil {
		return false
	}
	for _, v := range l.Values {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}
