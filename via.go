package toothconv

// VGG Image Annotator (VIA) specific functionality.

import (
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// VIAShape describes the shape of a region. Rects use X, Y, Width and Height; polygons and
// polylines use the point lists.
type VIAShape struct {
	Name    string    `json:"name"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Width   float64   `json:"width"`
	Height  float64   `json:"height"`
	PointsX []float64 `json:"all_points_x,omitempty"`
	PointsY []float64 `json:"all_points_y,omitempty"`
}

// VIARegionAnnotation is a single region annotation for a particular image in a VIA file.
type VIARegionAnnotation struct {
	Attributes map[string]interface{} `json:"region_attributes"`
	Shape      VIAShape               `json:"shape_attributes"`
}

// VIAAnnotatedFile defines the VIA annotation structure for a single file.
type VIAAnnotatedFile struct {
	Annotations []VIARegionAnnotation  `json:"regions"`
	Attributes  map[string]interface{} `json:"file_attributes"`
	FilePath    string                 `json:"filename"`
	Size        int64                  `json:"size"`
}

// VIAProject defines the VIA project structure.
type VIAProject struct {
	ImageMetadata map[string]VIAAnnotatedFile `json:"_via_img_metadata"`
}

// viaToothAttributes are the region attribute keys that may hold the FDI code, in order of
// preference.
var viaToothAttributes = []string{"Tooth", "tooth", "FDI", "fdi", "Label"}

// FromVIA reads and parses VIA annotations from the file at path. Both project files and plain
// annotation exports (a map of file entries) are accepted.
func FromVIA(path string) (Dataset, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, err
	}

	var viaData VIAProject
	if err := json.Unmarshal(enc, &viaData); err != nil {
		return Dataset{}, errors.Wrapf(ErrMalformedInput, "failed to parse VIA input from %q: %v",
			path, err)
	}
	if viaData.ImageMetadata == nil {
		if err := json.Unmarshal(enc, &viaData.ImageMetadata); err != nil {
			return Dataset{}, errors.Wrapf(ErrMalformedInput,
				"%q is neither a VIA project nor a VIA annotation export: %v", path, err)
		}
	}

	// Map iteration order is random; sort for reproducible output.
	keys := make([]string, 0, len(viaData.ImageMetadata))
	for k := range viaData.ImageMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ds := Dataset{Images: make([]ImageEntry, 0, len(keys))}
	for _, k := range keys {
		viaFile := viaData.ImageMetadata[k]
		if viaFile.FilePath == "" {
			return Dataset{}, errors.Wrapf(ErrMalformedInput, "VIA entry %q has no filename", k)
		}

		entry := ImageEntry{
			Annotations: make([]Annotation, 0, len(viaFile.Annotations)),
			FileName:    viaFile.FilePath,
		}
		for i, a := range viaFile.Annotations {
			coords, err := viaFile.Annotations[i].Shape.corners()
			if err != nil {
				return Dataset{}, errors.Wrapf(ErrMalformedInput, "VIA entry %q region %d: %v", k,
					i, err)
			}
			entry.Annotations = append(entry.Annotations, Annotation{
				Box:   Box{Coords: coords},
				Tooth: viaTooth(a.Attributes),
			})
		}
		ds.Images = append(ds.Images, entry)
	}

	ds.Images = mergeEntries(ds.Images)
	return ds, nil
}

// corners returns the bounding box corners of the shape.
func (s VIAShape) corners() ([4]float64, error) {
	switch s.Name {
	case "rect", "":
		return [4]float64{s.X, s.Y, s.X + s.Width, s.Y + s.Height}, nil
	case "polygon", "polyline":
		if len(s.PointsX) == 0 || len(s.PointsX) != len(s.PointsY) {
			return [4]float64{}, errors.Errorf("invalid %s point lists", s.Name)
		}
		c := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
		for i := range s.PointsX {
			c[0] = math.Min(c[0], s.PointsX[i])
			c[1] = math.Min(c[1], s.PointsY[i])
			c[2] = math.Max(c[2], s.PointsX[i])
			c[3] = math.Max(c[3], s.PointsY[i])
		}
		return c, nil
	}
	return [4]float64{}, errors.Errorf("unsupported shape %q", s.Name)
}

// viaTooth extracts the FDI code from region attributes. Only text and number attributes are
// read; checkbox and dropdown values are ignored. Returns -1, an invalid code, if no attribute
// holds an integer.
func viaTooth(attrs map[string]interface{}) int {
	for _, k := range viaToothAttributes {
		switch v := attrs[k].(type) {
		case string:
			if code, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return code
			}
		case float64:
			if v == math.Trunc(v) {
				return int(v)
			}
		}
	}
	return -1
}
