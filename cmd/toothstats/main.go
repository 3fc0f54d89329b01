// Prints the distribution of tooth numbers over the label files written by toothconv.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sensorable/toothconv"
	"github.com/sensorable/toothconv/internal/config"
	"github.com/sensorable/toothconv/internal/log"
)

var (
	datasetRoot  string
	labelDirName string
	splits       []string
	rawLabels    bool
	yoloIndices  bool
	logger       *logrus.Logger
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s: [flags] [dataset-root]\n", filepath.Base(os.Args[0]))
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

	flag.StringVar(&labelDirName, "label-dir-name",
		config.String(config.EnvLabelDir, toothconv.DefaultLabelDirName),
		"The `name` of the label directory in each split directory")
	s := flag.String("splits", "", "Comma-separated split directory `names`")
	flag.BoolVar(&rawLabels, "raw", false, "The label directories hold raw labels (-mode raw)")
	flag.BoolVar(&yoloIndices, "yolo-indices", false,
		"YOLO class tokens are class indices (labels written with -remap-classes)")
	logLevel := flag.String("log-level", config.String(config.EnvLogLevel, "info"),
		"The log `level`")

	flag.Parse()

	if flag.NArg() > 1 {
		printUsageAndExit("Too many arguments")
	}

	splits = config.List(config.EnvSplits, nil)
	if *s != "" {
		splits = config.SplitList(*s)
	}

	datasetRoot = flag.Arg(0)
	if datasetRoot == "" {
		datasetRoot = config.String(config.EnvDatasetRoot, ".")
	}
	datasetRoot = filepath.Clean(datasetRoot)

	var err error
	if logger, err = log.New(log.Options{Level: *logLevel}); err != nil {
		printUsageAndExit("Invalid -log-level: ", err)
	}
}

func main() {
	d, err := toothconv.AnalyzeDistribution(datasetRoot, labelDirName, splits, rawLabels,
		yoloIndices)
	if err != nil {
		logger.WithError(err).Fatal("Failed to count teeth")
	}
	if len(d.Splits) == 0 {
		logger.WithFields(log.Fields{"root": datasetRoot, "label_dir": labelDirName}).
			Fatal("No label directories found")
	}

	if err := d.WriteReport(os.Stdout); err != nil {
		logger.WithError(err).Fatal("Failed to write the report")
	}
}
