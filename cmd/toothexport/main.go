// Exports an annotated tooth dataset as a YOLO training dataset, optionally resizing the images
// and writing a TFRecord file of the same data.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sensorable/toothconv"
	"github.com/sensorable/toothconv/internal/config"
	"github.com/sensorable/toothconv/internal/log"
)

var (
	load   toothconv.LoadOptions
	opts   toothconv.DatasetOptions
	logger *logrus.Logger
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s: [flags] -out <dir> [dataset-root]\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		_, _ = fmt.Fprintln(os.Stderr, msg...)
		flag.Usage()
		os.Exit(2)
	}

	if err := config.Load(); err != nil {
		printUsageAndExit("Failed to load .env: ", err)
	}

	from := flag.String("source", "export", "The annotation source `format` {export, via, keypoints}")
	flag.StringVar(&load.Path, "annotations", "",
		"The annotation file `path` (default: discovered in the dataset root)")
	flag.StringVar(&opts.OutDir, "out", "", "The output `directory`")
	splits := flag.String("splits", "", "Comma-separated split directory `names`")
	flag.IntVar(&opts.Decimals, "decimals", toothconv.DefaultDecimals,
		"Decimal places for normalized values")
	flag.Float64Var(&opts.ClampTolerance, "clamp-tolerance", toothconv.DefaultClampTolerance,
		"Boxes exceeding the image by at most this `fraction` of its size are clamped "+
			"(0: default, <0: never)")
	flag.BoolVar(&opts.SkipEmpty, "skip-empty", false, "Leave out images without annotations")
	flag.IntVar(&opts.ResizeLonger, "resize-longer", 0,
		"Resize images to this `length` of the longer side (0: keep the aspect ratio)")
	flag.IntVar(&opts.ResizeShorter, "resize-shorter", 0,
		"Resize images to this `length` of the shorter side (0: keep the aspect ratio)")
	flag.IntVar(&opts.JPEGQuality, "jpeg-quality", 92, "The `quality` of re-encoded JPEG images")
	flag.StringVar(&opts.TFRecordPath, "tfrecord", "", "Also write a TFRecord `file`")
	flag.IntVar(&opts.NumShards, "num-shards", 1, "The `number` of TFRecord shards")
	flag.StringVar(&opts.LabelMapPath, "label-map", "",
		"The TFRecord label map `file` (default: label_map.pbtxt next to the TFRecord)")
	logLevel := flag.String("log-level", config.String(config.EnvLogLevel, "info"),
		"The log `level`")
	excluded := flag.String("exclude-ids", strings.Join(toothconv.DefaultExcludedIDs, ","),
		"Comma-separated image `ids` ignored by the keypoints source")
	logFile := flag.String("log-file", config.String(config.EnvLogFile, ""),
		"Also log to this rotating log file `path`")
	logCaller := flag.Bool("log-caller", false, "Report the calling function in log lines")
	noColor := flag.Bool("no-color", false, "Disable colored log output")

	flag.Parse()

	if load.Source = toothconv.SourceFrom(*from); load.Source == toothconv.SourceUnknown {
		printUsageAndExit("Unsupported annotation source ", *from)
	}
	if opts.OutDir == "" {
		printUsageAndExit("Missing -out")
	}
	if opts.Decimals < 1 || opts.Decimals > 17 {
		printUsageAndExit("Invalid -decimals, must be in [1, 17]: ", opts.Decimals)
	}
	if opts.ResizeLonger < 0 || opts.ResizeShorter < 0 {
		printUsageAndExit("Invalid resize dimensions")
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		printUsageAndExit("Invalid -jpeg-quality, must be in [1, 100]: ", opts.JPEGQuality)
	}
	if opts.NumShards < 1 {
		printUsageAndExit("Invalid -num-shards: ", opts.NumShards)
	}
	if flag.NArg() > 1 {
		printUsageAndExit("Too many arguments")
	}

	opts.Splits = config.List(config.EnvSplits, nil)
	if *splits != "" {
		opts.Splits = config.SplitList(*splits)
	}

	root := flag.Arg(0)
	if root == "" {
		root = config.String(config.EnvDatasetRoot, ".")
	}
	opts.Root = filepath.Clean(root)
	opts.OutDir = filepath.Clean(opts.OutDir)
	load.Root = opts.Root
	load.Splits = opts.Splits
	load.ExcludedIDs = config.SplitList(*excluded)
	if load.Path != "" {
		load.Path = filepath.Clean(load.Path)
	}

	var err error
	logger, err = log.New(log.Options{
		Level:   *logLevel,
		File:    *logFile,
		NoColor: *noColor,
		Caller:  *logCaller,
	})
	if err != nil {
		printUsageAndExit("Invalid -log-level: ", err)
	}
}

func main() {
	data, err := toothconv.LoadDataset(load)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse the input")
	}

	sum, err := toothconv.ExportDataset(data, opts, logger)
	if err != nil {
		logger.WithError(err).Fatal("Export failed")
	}

	logger.Infof("Exported %d images with %d labels to %s", sum.Files, sum.Written, opts.OutDir)
}
