package toothconv

// Annotation tool JSON export specific functionality.

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var validate = validator.New()

// DefaultExportNames are tried, in order, in the dataset root when no export path is given.
var DefaultExportNames = []string{"annotations.json", "export.json", "_annotations.json"}

// ImageID identifies an image in a flat export. Both JSON numbers and strings are accepted.
type ImageID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ImageID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ImageID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return errors.Errorf("image id %s is neither a string nor a number", b)
	}
	*id = ImageID(b)
	return nil
}

// ExportAnnotation is a single tooth bounding box in an export.
type ExportAnnotation struct {
	BBox       []float64 `json:"bbox" validate:"required,len=4"`
	BBoxFormat string    `json:"bbox_format,omitempty" validate:"omitempty,oneof=xyxy xywh cxcywh"`
	ImageID    ImageID   `json:"image_id,omitempty"` // Flat layout only.
	Normalized *bool     `json:"normalized,omitempty"`
	Tooth      *int      `json:"tooth_number" validate:"required"`
}

// ExportImage is an image record in an export. Annotations are only present in the nested layout.
type ExportImage struct {
	Annotations []ExportAnnotation `json:"annotations,omitempty" validate:"omitempty,dive"`
	FileName    string             `json:"file_name" validate:"required"`
	Height      int                `json:"height,omitempty" validate:"gte=0"`
	ID          ImageID            `json:"id,omitempty"`
	Normalized  *bool              `json:"normalized,omitempty"`
	Split       string             `json:"split,omitempty"`
	Width       int                `json:"width,omitempty" validate:"gte=0"`
}

// ExportCategory attaches a human-readable name to an FDI code.
type ExportCategory struct {
	FDI  int    `json:"fdi" validate:"required"`
	Name string `json:"name"`
}

// Export is the top-level structure of an annotation export.
type Export struct {
	Annotations []ExportAnnotation `json:"annotations,omitempty" validate:"omitempty,dive"`
	BBoxFormat  string             `json:"bbox_format,omitempty" validate:"omitempty,oneof=xyxy xywh cxcywh"`
	Categories  []ExportCategory   `json:"categories,omitempty" validate:"omitempty,dive"`
	Images      []ExportImage      `json:"images" validate:"required,dive"`
	Normalized  bool               `json:"normalized,omitempty"`
}

// FindExport returns the export path to use for the dataset at root: the first existing file of
// DefaultExportNames, else the first *.json file in root in lexical order.
func FindExport(root string) (string, error) {
	for _, name := range DefaultExportNames {
		if p := filepath.Join(root, name); isFile(p) {
			return p, nil
		}
	}
	files, err := filesByExtInDir(root, ".json")
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.Errorf("no annotation export (*.json) found in %q", root)
	}
	return files[0], nil
}

// FromExport reads, validates and parses the annotation export at path.
//
// Any syntax or schema violation is reported as ErrMalformedInput.
func FromExport(path string) (Dataset, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, err
	}

	var export Export
	if err := json.Unmarshal(enc, &export); err != nil {
		return Dataset{}, errors.Wrapf(ErrMalformedInput, "failed to parse %q: %v", path, err)
	}
	if err := validate.Struct(&export); err != nil {
		return Dataset{}, errors.Wrapf(ErrMalformedInput, "invalid export %q: %v", path, err)
	}

	ds, err := export.toDataset()
	if err != nil {
		return Dataset{}, errors.Wrapf(err, "invalid export %q", path)
	}
	return ds, nil
}

// toDataset converts a validated export to the intermediate representation.
func (x *Export) toDataset() (Dataset, error) {
	ds := Dataset{Images: make([]ImageEntry, 0, len(x.Images))}

	if len(x.Categories) > 0 {
		ds.ClassLabels = make(map[int]string, len(x.Categories))
		for _, c := range x.Categories {
			ds.ClassLabels[c.FDI] = c.Name
		}
	}

	byID := make(map[ImageID]int, len(x.Images))
	for i, img := range x.Images {
		if img.ID != "" {
			byID[img.ID] = i
		}

		normalized := x.Normalized
		if img.Normalized != nil {
			normalized = *img.Normalized
		}

		entry := ImageEntry{
			Annotations: make([]Annotation, 0, len(img.Annotations)),
			FileName:    img.FileName,
			Height:      img.Height,
			Split:       img.Split,
			Width:       img.Width,
		}
		for _, a := range img.Annotations {
			ann, err := x.annotation(a, normalized)
			if err != nil {
				return Dataset{}, err
			}
			entry.Annotations = append(entry.Annotations, ann)
		}
		ds.Images = append(ds.Images, entry)
	}

	// Attach the annotations of the flat layout.
	for i, a := range x.Annotations {
		if a.ImageID == "" {
			return Dataset{}, errors.Wrapf(ErrMalformedInput, "annotation %d has no image_id", i)
		}
		idx, ok := byID[a.ImageID]
		if !ok {
			return Dataset{}, errors.Wrapf(ErrMalformedInput,
				"annotation %d refers to unknown image %q", i, a.ImageID)
		}

		normalized := x.Normalized
		if n := x.Images[idx].Normalized; n != nil {
			normalized = *n
		}
		ann, err := x.annotation(a, normalized)
		if err != nil {
			return Dataset{}, err
		}
		ds.Images[idx].Annotations = append(ds.Images[idx].Annotations, ann)
	}

	ds.Images = mergeEntries(ds.Images)
	return ds, nil
}

// annotation converts a single validated export annotation. normalized is the image default.
func (x *Export) annotation(a ExportAnnotation, normalized bool) (Annotation, error) {
	name := a.BBoxFormat
	if name == "" {
		name = x.BBoxFormat
	}
	f, err := ParseBoxFormat(name)
	if err != nil {
		return Annotation{}, errors.Wrap(ErrMalformedInput, err.Error())
	}
	if a.Normalized != nil {
		normalized = *a.Normalized
	}

	var v [4]float64
	copy(v[:], a.BBox)
	return Annotation{Box: NewBox(v, f, normalized), Tooth: *a.Tooth}, nil
}
