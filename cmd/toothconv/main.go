// Converts tooth bounding box annotations to per-image raw and/or YOLO label files using FDI
// tooth numbering.
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
	load   toothconv.LoadOptions // The annotations to convert.
	opts   toothconv.Options     // Converter options.
	logger *logrus.Logger
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s: [flags] [dataset-root]\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  export input options:\t\t[-annotations <file>]")
		_, _ = fmt.Fprintln(os.Stderr, "  via input options:\t\t[-annotations <file>]")
		_, _ = fmt.Fprintln(os.Stderr, "  keypoints input options:\t[-splits <names>] [-exclude-ids <ids>]")
		_, _ = fmt.Fprintln(os.Stderr)
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
	mode := flag.String("mode", config.String(config.EnvMode, "both"),
		"The label `format`s to write {raw, yolo, both}")
	flag.StringVar(&opts.LabelDirName, "label-dir-name",
		config.String(config.EnvLabelDir, toothconv.DefaultLabelDirName),
		"The `name` of the label directory created in each split directory")
	flag.BoolVar(&opts.RemapClasses, "remap-classes", false,
		"Remap FDI numbers to class indices 0-31 in YOLO labels and write classes.txt")
	splits := flag.String("splits", "",
		"Comma-separated split directory `names` to search for images (default "+
			fmt.Sprint(toothconv.DefaultSplits)+")")
	flag.IntVar(&opts.Decimals, "decimals", toothconv.DefaultDecimals,
		"Decimal places for normalized values")
	flag.Float64Var(&opts.ClampTolerance, "clamp-tolerance", toothconv.DefaultClampTolerance,
		"Boxes exceeding the image by at most this `fraction` of its size are clamped "+
			"(0: default, <0: never)")
	flag.BoolVar(&opts.SkipEmpty, "skip-empty", false,
		"Do not write label files for images without annotations")
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
	m, err := toothconv.ParseMode(*mode)
	if err != nil {
		printUsageAndExit(err)
	}
	opts.Mode = m
	if opts.Decimals < 1 || opts.Decimals > 17 {
		printUsageAndExit("Invalid -decimals, must be in [1, 17]: ", opts.Decimals)
	}
	if flag.NArg() > 1 {
		printUsageAndExit("Too many arguments")
	}

	opts.Splits = config.List(config.EnvSplits, nil)
	if *splits != "" {
		opts.Splits = config.SplitList(*splits)
	}

	load.Splits = opts.Splits
	load.ExcludedIDs = config.SplitList(*excluded)

	root := flag.Arg(0)
	if root == "" {
		root = config.String(config.EnvDatasetRoot, ".")
	}
	opts.Root = filepath.Clean(root)
	load.Root = opts.Root
	if load.Path != "" {
		load.Path = filepath.Clean(load.Path)
	}

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
	// Fatal exits with status 1.
	sum, err := toothconv.ConvertDataset(load, opts, logger)
	if err != nil {
		logger.WithFields(log.Fields{"root": opts.Root, "reason": toothconv.Reason(err)}).
			WithError(err).Fatal("Conversion failed")
	}

	logger.Infof("Wrote %d label files for %d of %d images (%d records skipped)", sum.Files,
		sum.Images-sum.SkippedImages, sum.Images, sum.SkippedRecords)
}
