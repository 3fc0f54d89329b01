package toothconv

// Export of an image/label dataset in the on-disk layout of YOLO training tools.

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DataConfigFileName is the dataset descriptor read by the training tool.
const DataConfigFileName = "data.yaml"

// yoloSplitNames maps split directory names to the conventional YOLO split names.
var yoloSplitNames = map[string]string{
	"Training":   "train",
	"Validation": "val",
	"Testing":    "test",
}

// YOLOSplitName returns the YOLO split name for a split directory name.
func YOLOSplitName(split string) string {
	if s, ok := yoloSplitNames[split]; ok {
		return s
	}
	return strings.ToLower(split)
}

// DataConfig is the dataset descriptor consumed by the training tool.
type DataConfig struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train,omitempty"`
	Val   string   `yaml:"val,omitempty"`
	Test  string   `yaml:"test,omitempty"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// DatasetOptions configures ExportDataset.
type DatasetOptions struct {
	Root           string   // The source dataset root.
	OutDir         string   // The output directory.
	Splits         []string // Split directory names searched for images; DefaultSplits if empty.
	Decimals       int      // Decimal places of normalized values; DefaultDecimals if zero.
	ClampTolerance float64  // See Options.ClampTolerance.
	SkipEmpty      bool     // Leave out images without annotations.

	ResizeLonger  int // Target length of the longer image side; zero keeps the aspect ratio.
	ResizeShorter int // Target length of the shorter image side; zero keeps the aspect ratio.
	JPEGQuality   int // Quality of re-encoded JPEG images.

	TFRecordPath string // Also write a TFRecord file if not empty.
	NumShards    int    // The number of TFRecord shard files.
	LabelMapPath string // The TFRecord label map; next to TFRecordPath if empty.
}

// exportedImage is an image copied into the output dataset with its labels.
type exportedImage struct {
	split    string
	src, dst string
	lines    []string
}

// ExportDataset writes ds as a YOLO dataset to opts.OutDir: images/<split>/, labels/<split>/ with
// dense class indices, and data.yaml. Split names are converted with YOLOSplitName.
func ExportDataset(ds Dataset, opts DatasetOptions, log logrus.FieldLogger) (Summary, error) {
	if opts.OutDir == "" {
		return Summary{}, fmt.Errorf("missing output directory")
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 92
	}

	conv, err := NewConverter(Options{
		Root:           opts.Root,
		Mode:           ModeYOLO,
		RemapClasses:   true,
		Splits:         opts.Splits,
		Decimals:       opts.Decimals,
		ClampTolerance: opts.ClampTolerance,
	}, log)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Images: len(ds.Images) + len(ds.Rejects)}
	for _, err := range ds.Rejects {
		log.WithFields(logrus.Fields{"reason": Reason(err), "error": err}).
			Warn("Skipping annotation file")
		sum.skip(err, true)
	}

	// Collect the labels of all images before writing anything.
	var images []exportedImage
	splits := make(map[string]bool)
	owners := make(map[string]string) // YOLO split and stem -> image file name
	for _, e := range ds.Images {
		entryLog := log.WithField("image", e.FileName)
		split, src, lines, ok := conv.labelLines(e, &sum, entryLog)
		if !ok || (opts.SkipEmpty && len(lines[0]) == 0) {
			continue
		}
		s := YOLOSplitName(split)
		_, stem, _ := splitPath(src)
		key := s + "\x00" + stem
		if owner, ok := owners[key]; ok {
			err := errors.Wrapf(ErrDuplicateLabel, "%q and %q share a label file in split %q",
				owner, e.FileName, s)
			entryLog.WithFields(logrus.Fields{"reason": Reason(err), "error": err}).
				Warn("Skipping image")
			sum.skip(err, true)
			continue
		}
		owners[key] = e.FileName
		splits[s] = true
		images = append(images, exportedImage{
			split: s,
			src:   src,
			dst:   filepath.Join(opts.OutDir, "images", s, filepath.Base(src)),
			lines: lines[0],
		})
	}

	for s := range splits {
		for _, d := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(opts.OutDir, d, s), 0755); err != nil {
				return sum, err
			}
		}
	}

	for _, img := range images {
		_, stem, _ := splitPath(img.dst)
		path := filepath.Join(opts.OutDir, "labels", img.split, stem+".txt")
		if err := writeLines(path, img.lines); err != nil {
			return sum, err
		}
		sum.Files++
		sum.Written += len(img.lines)
	}

	if err := exportImages(images, opts, log); err != nil {
		return sum, err
	}

	if err := writeDataConfig(opts.OutDir, splits, ds.ClassLabels); err != nil {
		return sum, err
	}

	if opts.TFRecordPath != "" {
		labelMap := opts.LabelMapPath
		if labelMap == "" {
			labelMap = filepath.Join(filepath.Dir(opts.TFRecordPath), "label_map.pbtxt")
		}
		records := make([]tfRecordImage, 0, len(images))
		for _, img := range images {
			records = append(records, tfRecordImage{path: img.dst, lines: img.lines})
		}
		if err := WriteTFRecord(opts.TFRecordPath, labelMap, records, opts.NumShards, log); err != nil {
			return sum, err
		}
	}

	log.WithFields(logrus.Fields{
		"out":             opts.OutDir,
		"images":          len(images),
		"lines":           sum.Written,
		"skipped_images":  sum.SkippedImages,
		"skipped_records": sum.SkippedRecords,
	}).Info("Dataset export finished")

	return sum, nil
}

// exportImages copies or resizes the images concurrently.
func exportImages(images []exportedImage, opts DatasetOptions, log logrus.FieldLogger) error {
	if len(images) == 0 {
		return nil
	}
	resize := opts.ResizeLonger > 0 || opts.ResizeShorter > 0
	log.WithFields(logrus.Fields{"count": len(images), "resize": resize}).Info("Exporting images")

	// Limit the number of goroutines in flight, as they load potentially large images into memory.
	numTasks := 2 * runtime.NumCPU()
	if len(images) < numTasks {
		numTasks = len(images)
	}
	workQueue := make(chan *exportedImage, 2*numTasks)
	errs := make(chan error, 1)

	trySendError := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for img := range workQueue {
				var err error
				if resize {
					err = resizeImageFile(img.dst, img.src, opts.ResizeLonger, opts.ResizeShorter,
						opts.JPEGQuality)
				} else {
					err = copyFile(img.dst, img.src)
				}
				if err != nil {
					trySendError(errors.Wrapf(err, "cannot export image %q", img.src))
				}
			}
		}()
	}

	for i := range images {
		workQueue <- &images[i]
	}
	close(workQueue)
	wg.Wait()

	close(errs)
	if err := <-errs; err != nil {
		return err
	}
	return nil
}

// writeDataConfig writes data.yaml for the exported splits.
func writeDataConfig(outDir string, splits map[string]bool, labels map[int]string) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}

	cfg := DataConfig{
		Path:  filepath.ToSlash(abs),
		NC:    NumClasses,
		Names: ClassNames(labels),
	}
	if splits["train"] {
		cfg.Train = "images/train"
	}
	if splits["val"] {
		cfg.Val = "images/val"
	}
	if splits["test"] {
		cfg.Test = "images/test"
	}

	enc, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(outDir, DataConfigFileName)
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// ReadDataConfig reads a data.yaml written by ExportDataset.
func ReadDataConfig(path string) (DataConfig, error) {
	var cfg DataConfig
	enc, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(enc, &cfg); err != nil {
		return cfg, errors.Wrapf(ErrMalformedInput, "failed to parse %q: %v", path, err)
	}
	return cfg, nil
}
