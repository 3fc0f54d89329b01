package toothconv

import (
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDataset creates train/images/img1.png (640x640) and val/img2.png (200x100) below a new
// root, and returns the root.
func newTestDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "train", "images", "img1.png"), 640, 640)
	writePNG(t, filepath.Join(root, "val", "img2.png"), 200, 100)
	return root
}

func newTestConverter(t *testing.T, opts Options) (*Converter, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	c, err := NewConverter(opts, logger)
	require.NoError(t, err)
	return c, hook
}

func TestConvertYOLORemap(t *testing.T) {
	root := newTestDataset(t)
	c, _ := newTestConverter(t, Options{Root: root, Mode: ModeYOLO, RemapClasses: true})

	ds := Dataset{
		ClassLabels: map[int]string{11: "UR1"},
		Images: []ImageEntry{{
			FileName:    "img1.jpg",
			Annotations: []Annotation{{Box: pixelBox(100, 50, 300, 150), Tooth: 11}},
		}},
	}
	sum, err := c.Convert(ds)
	require.NoError(t, err)

	assert.Equal(t, []string{"0 0.312500 0.156250 0.312500 0.156250"},
		fileLines(t, filepath.Join(root, "train", DefaultLabelDirName, "img1.txt")))
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 1, sum.Written)

	classes := fileLines(t, filepath.Join(root, ClassesFileName))
	require.Len(t, classes, NumClasses)
	assert.Equal(t, "UR1", classes[0])
	assert.Equal(t, "48", classes[31])
}

func TestConvertBothModes(t *testing.T) {
	root := newTestDataset(t)
	c, _ := newTestConverter(t, Options{Root: root, LabelDirName: "Labels"})

	ds := Dataset{Images: []ImageEntry{{
		FileName: "img2.jpg",
		Annotations: []Annotation{
			{Box: pixelBox(20, 10, 60, 30), Tooth: 36},
			{Box: Box{Coords: [4]float64{0.5, 0.5, 0.75, 1}, Normalized: true}, Tooth: 37},
		},
	}}}
	sum, err := c.Convert(ds)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)

	dir := filepath.Join(root, "val", "Labels")
	assert.Equal(t, []string{
		"36 20 10 60 30",
		"37 0.500000 0.500000 0.750000 1.000000",
	}, fileLines(t, filepath.Join(dir, "raw", "img2.txt")))
	assert.Equal(t, []string{
		"36 0.200000 0.200000 0.200000 0.200000",
		"37 0.625000 0.750000 0.250000 0.500000",
	}, fileLines(t, filepath.Join(dir, "yolo", "img2.txt")))
	assert.NoFileExists(t, filepath.Join(root, ClassesFileName))
}

func TestConvertRawModeSkipsImageDecoding(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train", "scan.jpg"), "not an image")
	c, _ := newTestConverter(t, Options{Root: root, Mode: ModeRaw})

	_, err := c.Convert(Dataset{Images: []ImageEntry{{
		FileName:    "scan.jpg",
		Annotations: []Annotation{{Box: pixelBox(1, 2, 3, 4), Tooth: 11}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"11 1 2 3 4"},
		fileLines(t, filepath.Join(root, "train", DefaultLabelDirName, "scan.txt")))
}

func TestConvertSkipsInvalidRecords(t *testing.T) {
	root := newTestDataset(t)
	c, hook := newTestConverter(t, Options{Root: root, Mode: ModeYOLO, RemapClasses: true})

	ds := Dataset{Images: []ImageEntry{{
		FileName: "img1.png",
		Annotations: []Annotation{
			{Box: pixelBox(100, 50, 300, 150), Tooth: 11},
			{Box: pixelBox(100, 50, 300, 150), Tooth: 99},
			{Box: pixelBox(-100, 50, 300, 150), Tooth: 12},
			{Box: pixelBox(300, 50, 100, 150), Tooth: 13},
			{Box: pixelBox(-3, 0, 320, 320), Tooth: 21},
		},
	}}}
	sum, err := c.Convert(ds)
	require.NoError(t, err)

	lines := fileLines(t, filepath.Join(root, "train", DefaultLabelDirName, "img1.txt"))
	require.Len(t, lines, 2)
	assert.Equal(t, "0 0.312500 0.156250 0.312500 0.156250", lines[0])
	assert.Equal(t, "8 0.250000 0.250000 0.500000 0.500000", lines[1])

	assert.Equal(t, 5, sum.Records)
	assert.Equal(t, 3, sum.SkippedRecords)
	assert.Equal(t, 1, sum.Clamped)
	assert.Equal(t, map[string]int{"invalid class": 1, "out of bounds": 1, "malformed geometry": 1},
		sum.Reasons)

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 3, warnings)
}

func TestConvertInvalidClassWithoutRemap(t *testing.T) {
	root := newTestDataset(t)
	c, _ := newTestConverter(t, Options{Root: root, Mode: ModeRaw})

	sum, err := c.Convert(Dataset{Images: []ImageEntry{{
		FileName: "img1.png",
		Annotations: []Annotation{
			{Box: pixelBox(1, 2, 3, 4), Tooth: 55},
			{Box: pixelBox(1, 2, 3, 4), Tooth: 48},
		},
	}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"48 1 2 3 4"},
		fileLines(t, filepath.Join(root, "train", DefaultLabelDirName, "img1.txt")))
	assert.Equal(t, 1, sum.Reasons["invalid class"])
}

func TestConvertEmptyEntry(t *testing.T) {
	root := newTestDataset(t)
	ds := Dataset{Images: []ImageEntry{{FileName: "img1.png"}}}
	path := filepath.Join(root, "train", DefaultLabelDirName, "img1.txt")

	c, _ := newTestConverter(t, Options{Root: root, Mode: ModeYOLO, SkipEmpty: true})
	_, err := c.Convert(ds)
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	c, _ = newTestConverter(t, Options{Root: root, Mode: ModeYOLO})
	sum, err := c.Convert(ds)
	require.NoError(t, err)
	assert.Equal(t, "", readFile(t, path))
	assert.Equal(t, 1, sum.Files)
}

func TestConvertMissingImage(t *testing.T) {
	root := newTestDataset(t)
	c, _ := newTestConverter(t, Options{Root: root})

	sum, err := c.Convert(Dataset{Images: []ImageEntry{
		{FileName: "gone.jpg", Annotations: []Annotation{{Box: pixelBox(1, 2, 3, 4), Tooth: 11}}},
		{FileName: "img2.png", Annotations: []Annotation{{Box: pixelBox(1, 2, 3, 4), Tooth: 11}}},
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.SkippedImages)
	assert.Equal(t, 1, sum.Reasons["missing image"])
	assert.Equal(t, 2, sum.Files)
	assert.NoFileExists(t, filepath.Join(root, "train", DefaultLabelDirName, "raw", "gone.txt"))
	assert.FileExists(t, filepath.Join(root, "val", DefaultLabelDirName, "yolo", "img2.txt"))
}

func TestConvertRejects(t *testing.T) {
	root := newTestDataset(t)
	c, _ := newTestConverter(t, Options{Root: root})

	sum, err := c.Convert(Dataset{Rejects: []error{ErrInvalidClass}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Images)
	assert.Equal(t, 1, sum.SkippedImages)
}

func TestConvertIdempotent(t *testing.T) {
	root := newTestDataset(t)
	path := filepath.Join(root, "export.json")
	writeFile(t, path, `{"images": [
		{"file_name": "img1.png", "annotations": [
			{"bbox": [100, 50, 300, 150], "tooth_number": 11},
			{"bbox": [0.1, 0.1, 0.3, 0.2], "bbox_format": "xywh", "normalized": true, "tooth_number": 42}
		]},
		{"file_name": "img2.png", "annotations": [{"bbox": [0, 0, 200, 100], "tooth_number": 18}]}
	]}`)

	ds, err := FromExport(path)
	require.NoError(t, err)

	run := func() map[string]string {
		c, _ := newTestConverter(t, Options{Root: root, RemapClasses: true})
		_, err := c.Convert(ds)
		require.NoError(t, err)

		out := make(map[string]string)
		for _, p := range []string{
			filepath.Join(root, ClassesFileName),
			filepath.Join(root, "train", DefaultLabelDirName, "raw", "img1.txt"),
			filepath.Join(root, "train", DefaultLabelDirName, "yolo", "img1.txt"),
			filepath.Join(root, "val", DefaultLabelDirName, "raw", "img2.txt"),
			filepath.Join(root, "val", DefaultLabelDirName, "yolo", "img2.txt"),
		} {
			out[p] = readFile(t, p)
		}
		return out
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, "7 0.500000 0.500000 1.000000 1.000000\n",
		first[filepath.Join(root, "val", DefaultLabelDirName, "yolo", "img2.txt")])
}

func TestNewConverterValidation(t *testing.T) {
	root := t.TempDir()
	logger, _ := test.NewNullLogger()

	for name, opts := range map[string]Options{
		"nested label dir": {Root: root, LabelDirName: "a/b"},
		"parent label dir": {Root: root, LabelDirName: ".."},
		"decimals":         {Root: root, Decimals: 18},
		"tolerance":        {Root: root, ClampTolerance: math.NaN()},
		"mode":             {Root: root, Mode: Mode(7)},
		"missing root":     {Root: filepath.Join(root, "missing")},
	} {
		_, err := NewConverter(opts, logger)
		assert.Error(t, err, name)
	}

	c, err := NewConverter(Options{Root: root}, logger)
	require.NoError(t, err)
	assert.Equal(t, ModeBoth, c.opts.Mode)
	assert.Equal(t, DefaultLabelDirName, c.opts.LabelDirName)
	assert.Equal(t, DefaultDecimals, c.opts.Decimals)
	assert.Equal(t, DefaultClampTolerance, c.opts.ClampTolerance)
}

func TestConvertClampTolerance(t *testing.T) {
	root := newTestDataset(t)
	ds := Dataset{Images: []ImageEntry{{
		FileName:    "img1.png",
		Annotations: []Annotation{{Box: pixelBox(320, 0, 640.0001, 320), Tooth: 11}},
	}}}
	path := filepath.Join(root, "train", DefaultLabelDirName, "img1.txt")

	c, _ := newTestConverter(t, Options{Root: root, Mode: ModeYOLO})
	sum, err := c.Convert(ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Clamped)
	assert.Equal(t, []string{"11 0.750000 0.250000 0.500000 0.500000"}, fileLines(t, path))

	c, _ = newTestConverter(t, Options{Root: root, Mode: ModeYOLO, ClampTolerance: -1})
	sum, err = c.Convert(ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Reasons["out of bounds"])
	assert.Empty(t, fileLines(t, path))
}

func TestConvertDuplicateStems(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train", "scan.png"), "a")
	writeFile(t, filepath.Join(root, "train", "scan.jpg"), "b")
	writeFile(t, filepath.Join(root, "val", "scan.jpg"), "c")
	c, hook := newTestConverter(t, Options{Root: root, Mode: ModeRaw})

	sum, err := c.Convert(Dataset{Images: []ImageEntry{
		{FileName: "scan.png", Annotations: []Annotation{{Box: pixelBox(1, 2, 3, 4), Tooth: 11}}},
		{FileName: "scan.jpg", Split: "train", Annotations: []Annotation{{Box: pixelBox(5, 6, 7, 8), Tooth: 21}}},
		{FileName: "scan.jpg", Split: "val", Annotations: []Annotation{{Box: pixelBox(5, 6, 7, 8), Tooth: 31}}},
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"11 1 2 3 4"},
		fileLines(t, filepath.Join(root, "train", DefaultLabelDirName, "scan.txt")))
	assert.Equal(t, []string{"31 5 6 7 8"},
		fileLines(t, filepath.Join(root, "val", DefaultLabelDirName, "scan.txt")))
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 1, sum.SkippedImages)
	assert.Equal(t, map[string]int{"duplicate label file": 1}, sum.Reasons)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["image"] == "scan.jpg" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestConvertDataset(t *testing.T) {
	root := newTestDataset(t)
	writeFile(t, filepath.Join(root, "annotations.json"), `{"images": [
		{"file_name": "img1.png", "annotations": [{"bbox": [100, 50, 300, 150], "tooth_number": 11}]}
	]}`)
	logger, _ := test.NewNullLogger()

	sum, err := ConvertDataset(LoadOptions{Source: SourceExport},
		Options{Root: root, Mode: ModeYOLO, RemapClasses: true}, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, []string{"0 0.312500 0.156250 0.312500 0.156250"},
		fileLines(t, filepath.Join(root, "train", DefaultLabelDirName, "img1.txt")))
}

func TestConvertDatasetMalformedWritesNothing(t *testing.T) {
	inputs := map[string]string{
		"syntax":          `{"images": [{"file_name": "img1.png", "annotations": [`,
		"no tooth number": `{"images": [{"file_name": "img1.png", "annotations": [{"bbox": [1, 2, 3, 4]}]}]}`,
		"dangling image":  `{"images": [{"id": 1, "file_name": "img1.png"}], "annotations": [{"image_id": 2, "bbox": [1, 2, 3, 4], "tooth_number": 11}]}`,
	}

	for name, content := range inputs {
		t.Run(name, func(t *testing.T) {
			root := newTestDataset(t)
			writeFile(t, filepath.Join(root, "annotations.json"), content)
			before := treeFiles(t, root)
			logger, _ := test.NewNullLogger()

			_, err := ConvertDataset(LoadOptions{Source: SourceExport},
				Options{Root: root, RemapClasses: true}, logger)
			assert.Equal(t, ErrMalformedInput, errors.Cause(err))
			assert.Equal(t, before, treeFiles(t, root))
			assert.NoFileExists(t, filepath.Join(root, ClassesFileName))
			assert.NoDirExists(t, filepath.Join(root, "train", DefaultLabelDirName))
		})
	}
}

// treeFiles lists all paths below root.
func treeFiles(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	require.NoError(t, filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		paths = append(paths, path)
		return err
	}))
	return paths
}

func TestWriteClassesFile(t *testing.T) {
	root := t.TempDir()
	path, err := WriteClassesFile(root, nil)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, ClassNames(nil), fileLines(t, path))
}
