package toothconv

import (
	"fmt"
)

// Source is an annotation input format.
type Source int

// The known annotation sources.
const (
	SourceUnknown   Source = iota // If an unknown source is specified.
	SourceExport                  // Annotation tool JSON export.
	SourceVIA                     // VGG Image Annotator project.
	SourceKeyPoints               // Per-split key point annotation files with a metadata table.
)

// SourceFrom parses "export", "via" or "keypoints".
func SourceFrom(s string) Source {
	switch s {
	case "export", "":
		return SourceExport
	case "via":
		return SourceVIA
	case "keypoints":
		return SourceKeyPoints
	}
	return SourceUnknown
}

// LoadOptions selects the annotations read by LoadDataset.
type LoadOptions struct {
	Source Source
	Root   string   // The dataset root.
	Path   string   // The annotation file of the export and via sources; see FindExport.
	Splits []string // Split directory names read by the keypoints source.

	// Image ids whose key point annotations are ignored by the keypoints source.
	ExcludedIDs []string
}

// LoadDataset parses the annotations of the dataset at opts.Root. The annotation file is discovered
// with FindExport if opts.Path is empty. The keypoints source ignores opts.Path and reads the
// splits below the root.
func LoadDataset(opts LoadOptions) (Dataset, error) {
	if opts.Source == SourceKeyPoints {
		return FromKeyPoints(opts.Root, opts.Splits, opts.ExcludedIDs)
	}

	path := opts.Path
	if path == "" {
		p, err := FindExport(opts.Root)
		if err != nil {
			return Dataset{}, err
		}
		path = p
	}

	switch opts.Source {
	case SourceExport:
		return FromExport(path)
	case SourceVIA:
		return FromVIA(path)
	}
	return Dataset{}, fmt.Errorf("unsupported annotation source %d", opts.Source)
}
