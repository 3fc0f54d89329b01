// Removes lines that are not normalized YOLO lines from the label files of a YOLO dataset.
package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sensorable/toothconv"
	"github.com/sensorable/toothconv/internal/config"
	"github.com/sensorable/toothconv/internal/log"
)

var (
	dirs    []string // The label directories to process.
	backup  bool
	restore bool
	logger  *logrus.Logger
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s: [flags] <dataset-root | data.yaml | label-dir>...\n",
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

	flag.BoolVar(&backup, "backup", false, "Copy changed files to <file>.bak first")
	flag.BoolVar(&restore, "restore", false, "Restore <file>.bak backups instead of cleaning")
	splits := flag.String("splits", "train,val,test",
		"Comma-separated YOLO split `names` searched below a dataset root")
	logLevel := flag.String("log-level", config.String(config.EnvLogLevel, "info"),
		"The log `level`")

	flag.Parse()

	if flag.NArg() == 0 {
		printUsageAndExit("Missing dataset root, data.yaml or label directory")
	}

	for _, arg := range flag.Args() {
		arg = filepath.Clean(arg)
		switch {
		case filepath.Base(arg) == toothconv.DataConfigFileName:
			cfg, err := toothconv.ReadDataConfig(arg)
			if err != nil {
				printUsageAndExit(err)
			}
			dirs = append(dirs, dataConfigLabelDirs(cfg, filepath.Dir(arg))...)
		default:
			if d := toothconv.YOLOLabelDirs(arg, config.SplitList(*splits)); len(d) > 0 {
				dirs = append(dirs, d...)
			} else {
				dirs = append(dirs, arg)
			}
		}
	}

	var err error
	if logger, err = log.New(log.Options{Level: *logLevel}); err != nil {
		printUsageAndExit("Invalid -log-level: ", err)
	}
}

// dataConfigLabelDirs returns the label directories of the splits listed in cfg. Image paths are
// mapped to label paths by replacing the leading "images" element.
func dataConfigLabelDirs(cfg toothconv.DataConfig, base string) []string {
	root := cfg.Path
	if root == "" || !filepath.IsAbs(root) {
		root = filepath.Join(base, root)
	}

	var dirs []string
	for _, p := range []string{cfg.Train, cfg.Val, cfg.Test} {
		if p == "" {
			continue
		}
		dir, file := path.Split(filepath.ToSlash(p))
		if dir == "images/" {
			p = path.Join("labels", file)
		}
		dirs = append(dirs, filepath.Join(root, filepath.FromSlash(p)))
	}
	return dirs
}

func main() {
	var total toothconv.CleanResult
	for _, dir := range dirs {
		if restore {
			n, err := toothconv.RestoreBackups(dir)
			if err != nil {
				logger.WithError(err).Fatal("Failed to restore backups")
			}
			logger.WithFields(log.Fields{"dir": dir, "files": n}).Info("Restored backups")
			continue
		}

		res, err := toothconv.CleanLabels(dir, backup)
		if err != nil {
			logger.WithError(err).Fatal("Failed to clean labels")
		}
		logger.WithFields(log.Fields{
			"dir":     dir,
			"files":   res.Files,
			"kept":    res.Kept,
			"removed": res.Removed(),
		}).Info("Cleaned label files")

		total.Files += res.Files
		total.Original += res.Original
		total.Kept += res.Kept
	}

	if !restore {
		logger.Infof("Kept %d of %d lines in %d files (%d removed)", total.Kept, total.Original,
			total.Files, total.Removed())
	}
}
