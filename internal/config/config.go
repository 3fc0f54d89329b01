// Package config provides environment based defaults for command line flags.
//
// Values are read from the process environment, which is first populated from a .env file in the
// working directory if one exists. Variables already set in the environment take precedence over
// the file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvDatasetRoot = "TOOTHCONV_DATASET_ROOT"
	EnvLabelDir    = "TOOTHCONV_LABEL_DIR"
	EnvMode        = "TOOTHCONV_MODE"
	EnvSplits      = "TOOTHCONV_SPLITS"
	EnvLogLevel    = "TOOTHCONV_LOG_LEVEL"
	EnvLogFile     = "TOOTHCONV_LOG_FILE"
)

// Load reads the given .env files, or ".env" if none are given. Missing files are not an error.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// String returns the value of the environment variable key, or def if it is unset or empty.
func String(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Bool returns the boolean value of key, or def if it is unset or not a boolean.
func Bool(key string, def bool) bool {
	if b, err := strconv.ParseBool(String(key, "")); err == nil {
		return b
	}
	return def
}

// List splits the comma-separated value of key, or returns def if it is unset.
func List(key string, def []string) []string {
	v := String(key, "")
	if v == "" {
		return def
	}
	return SplitList(v)
}

// SplitList splits a comma-separated list, dropping empty elements.
func SplitList(s string) []string {
	var l []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			l = append(l, v)
		}
	}
	return l
}
