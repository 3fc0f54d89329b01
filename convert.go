package toothconv

// Conversion of the intermediate representation to per-image label files.

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Defaults for Options.
const (
	DefaultLabelDirName   = "Tooth_Labels"
	DefaultClampTolerance = 0.01
	ClassesFileName       = "classes.txt"
)

// Options configures a Converter.
type Options struct {
	Root           string   // The dataset root containing the split directories.
	Mode           Mode     // The label formats to write.
	LabelDirName   string   // The label directory created in each split directory.
	RemapClasses   bool     // Write dense class indices instead of FDI codes to YOLO lines.
	Splits         []string // Split directory names searched for images; DefaultSplits if empty.
	Decimals       int      // Decimal places of normalized values; DefaultDecimals if zero.
	ClampTolerance float64  // Clamp limit as a fraction of the image size; see NewConverter.
	SkipEmpty      bool     // Do not write label files without lines.
}

// Converter writes label files for the images of a Dataset.
type Converter struct {
	opts    Options
	log     logrus.FieldLogger
	locator *imageLocator
	claimed map[string]string // split and stem -> file name of the entry owning the label file
}

// NewConverter validates opts and returns a Converter logging to log.
//
// A zero ClampTolerance selects DefaultClampTolerance and a negative one disables clamping.
func NewConverter(opts Options, log logrus.FieldLogger) (*Converter, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Mode == 0 {
		opts.Mode = ModeBoth
	}
	if opts.LabelDirName == "" {
		opts.LabelDirName = DefaultLabelDirName
	}
	if opts.Decimals == 0 {
		opts.Decimals = DefaultDecimals
	}
	if opts.ClampTolerance == 0 {
		opts.ClampTolerance = DefaultClampTolerance
	}

	switch {
	case opts.Mode.formats() == nil:
		return nil, fmt.Errorf("invalid mode %v", opts.Mode)
	case strings.ContainsAny(opts.LabelDirName, `/\`) || opts.LabelDirName == "." ||
		opts.LabelDirName == "..":
		return nil, fmt.Errorf("label directory name %q must be a plain name", opts.LabelDirName)
	case opts.Decimals < 0 || opts.Decimals > 17:
		return nil, fmt.Errorf("decimals %d out of range [0, 17]", opts.Decimals)
	case math.IsNaN(opts.ClampTolerance) || math.IsInf(opts.ClampTolerance, 0):
		return nil, fmt.Errorf("invalid clamp tolerance %v", opts.ClampTolerance)
	}
	if opts.ClampTolerance < 0 {
		opts.ClampTolerance = 0
	}
	if !isDir(opts.Root) {
		return nil, fmt.Errorf("dataset root %q is not a directory", opts.Root)
	}

	return &Converter{
		opts:    opts,
		log:     log,
		locator: newImageLocator(opts.Root, opts.Splits),
		claimed: make(map[string]string),
	}, nil
}

// ConvertDataset parses the annotations selected by load and converts them with a Converter for
// opts. The input is parsed and the options are validated before any file is written.
func ConvertDataset(load LoadOptions, opts Options, log logrus.FieldLogger) (Summary, error) {
	if opts.Root == "" {
		opts.Root = load.Root
	}
	if load.Root == "" {
		load.Root = opts.Root
	}
	if len(load.Splits) == 0 {
		load.Splits = opts.Splits
	}

	conv, err := NewConverter(opts, log)
	if err != nil {
		return Summary{}, err
	}

	ds, err := LoadDataset(load)
	if err != nil {
		return Summary{}, err
	}
	log.WithFields(logrus.Fields{"root": load.Root, "images": len(ds.Images)}).
		Info("Parsed annotations")

	return conv.Convert(ds)
}

// Convert writes one label file per image entry of ds, and the class list if classes are remapped.
//
// Entries and records with problems are logged, counted in the returned Summary and skipped. Only
// I/O errors while writing abort the conversion.
func (c *Converter) Convert(ds Dataset) (Summary, error) {
	sum := Summary{Images: len(ds.Images) + len(ds.Rejects)}
	c.claimed = make(map[string]string, len(ds.Images))

	for _, err := range ds.Rejects {
		c.log.WithFields(logrus.Fields{"reason": Reason(err), "error": err}).
			Warn("Skipping annotation file")
		sum.skip(err, true)
	}

	if c.opts.RemapClasses {
		path, err := WriteClassesFile(c.opts.Root, ds.ClassLabels)
		if err != nil {
			return sum, err
		}
		c.log.WithField("path", path).Info("Wrote class list")
	}

	for _, e := range ds.Images {
		if err := c.convertImage(e, &sum); err != nil {
			return sum, err
		}
	}

	c.log.WithFields(logrus.Fields{
		"images":          sum.Images,
		"files":           sum.Files,
		"records":         sum.Records,
		"lines":           sum.Written,
		"clamped":         sum.Clamped,
		"skipped_images":  sum.SkippedImages,
		"skipped_records": sum.SkippedRecords,
	}).Info("Conversion finished")
	for _, k := range sum.ReasonKeys() {
		c.log.WithFields(logrus.Fields{"reason": k, "count": sum.Reasons[k]}).Info("Skipped")
	}

	return sum, nil
}

// convertImage writes the label files of a single image entry.
func (c *Converter) convertImage(e ImageEntry, sum *Summary) error {
	log := c.log.WithField("image", e.FileName)

	split, _, lines, ok := c.labelLines(e, sum, log)
	if !ok {
		return nil
	}

	if c.opts.SkipEmpty && len(lines[0]) == 0 {
		log.Debug("No annotations, not writing a label file")
		return nil
	}

	for i, f := range c.opts.Mode.formats() {
		dir := c.labelDir(split, f)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "cannot create label directory %q", dir)
		}
		path := filepath.Join(dir, e.Stem()+".txt")
		if err := writeLines(path, lines[i]); err != nil {
			return err
		}
		sum.Files++
		sum.Written += len(lines[i])
	}

	return nil
}

// labelLines locates the image of e and formats its label lines, one slice per format of the
// mode. Returns false if the entry is skipped.
func (c *Converter) labelLines(e ImageEntry, sum *Summary, log *logrus.Entry) (
	split, imagePath string, lines [][]string, ok bool) {

	split, imagePath, err := c.locator.locate(e)
	if err != nil {
		log.WithFields(logrus.Fields{"reason": Reason(err), "error": err}).Warn("Skipping image")
		sum.skip(err, true)
		return "", "", nil, false
	}
	log = log.WithField("split", split)

	formats := c.opts.Mode.formats()
	wantYOLO := c.opts.Mode != ModeRaw

	// Resolve the image size if pixel boxes are normalized.
	width, height := e.Width, e.Height
	if wantYOLO && (width <= 0 || height <= 0) && hasPixelBoxes(e) {
		cfg, _, err := decodeImageConfig(imagePath)
		if err != nil {
			err = errors.Wrapf(ErrMissingImage, "cannot determine the size of %q: %v", imagePath, err)
			log.WithFields(logrus.Fields{"reason": Reason(err), "error": err}).Warn("Skipping image")
			sum.skip(err, true)
			return "", "", nil, false
		}
		width, height = cfg.Width, cfg.Height
	}

	// Entries with the same stem in a split would share a label file.
	key := split + "\x00" + e.Stem()
	if owner, ok := c.claimed[key]; ok {
		err := errors.Wrapf(ErrDuplicateLabel, "label file of %q is already written for %q",
			e.FileName, owner)
		log.WithFields(logrus.Fields{"reason": Reason(err), "error": err}).Warn("Skipping image")
		sum.skip(err, true)
		return "", "", nil, false
	}
	c.claimed[key] = e.FileName

	lines = make([][]string, len(formats))
	for _, a := range e.Annotations {
		sum.Records++

		raw, yolo, clamped, err := c.formatAnnotation(a, width, height)
		if err != nil {
			log.WithFields(logrus.Fields{"tooth": a.Tooth, "reason": Reason(err), "error": err}).
				Warn("Skipping annotation")
			sum.skip(err, false)
			continue
		}
		if clamped {
			sum.Clamped++
		}

		for i, f := range formats {
			if f == yoloFormat {
				lines[i] = append(lines[i], yolo)
			} else {
				lines[i] = append(lines[i], raw)
			}
		}
	}

	return split, imagePath, lines, true
}

// formatAnnotation validates a and formats its raw and, unless in raw mode, its YOLO line.
func (c *Converter) formatAnnotation(a Annotation, width, height int) (
	raw, yolo string, clamped bool, err error) {

	if !IsValidFDI(a.Tooth) {
		return "", "", false, errors.Wrapf(ErrInvalidClass,
			"tooth %d is not a permanent-tooth FDI code", a.Tooth)
	}

	if c.opts.Mode == ModeRaw {
		if err := checkGeometry(a.Box); err != nil {
			return "", "", false, err
		}
		return FormatRawLine(a.Tooth, a.Box, c.opts.Decimals), "", false, nil
	}

	class := a.Tooth
	if c.opts.RemapClasses {
		if class, err = FDIToIndex(a.Tooth); err != nil {
			return "", "", false, err
		}
	}

	y, clamped, err := Normalize(a.Box, width, height, c.opts.ClampTolerance)
	if err != nil {
		return "", "", false, err
	}

	return FormatRawLine(a.Tooth, a.Box, c.opts.Decimals),
		FormatYOLOLine(class, y, c.opts.Decimals), clamped, nil
}

// labelDir is the directory receiving label files of format f for split.
func (c *Converter) labelDir(split string, f labelFormat) string {
	dir := filepath.Join(c.opts.Root, split, c.opts.LabelDirName)
	if c.opts.Mode == ModeBoth {
		dir = filepath.Join(dir, f.String())
	}
	return dir
}

// hasPixelBoxes reports whether any annotation of e uses pixel coordinates.
func hasPixelBoxes(e ImageEntry) bool {
	for _, a := range e.Annotations {
		if !a.Box.Normalized {
			return true
		}
	}
	return false
}

// checkGeometry rejects boxes with non-finite coordinates or without area.
func checkGeometry(b Box) error {
	for _, v := range b.Coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrMalformedGeometry, "non-finite coordinate in %v", b.Coords)
		}
	}
	if b.Coords[2] <= b.Coords[0] || b.Coords[3] <= b.Coords[1] {
		return errors.Wrapf(ErrMalformedGeometry, "empty or inverted box %v", b.Coords)
	}
	return nil
}

// WriteClassesFile writes the class list to root/classes.txt, one name per class index, and returns
// its path. labels optionally provides names by FDI code.
func WriteClassesFile(root string, labels map[int]string) (string, error) {
	path := filepath.Join(root, ClassesFileName)
	if err := writeLines(path, ClassNames(labels)); err != nil {
		return "", err
	}
	return path, nil
}
