package toothconv

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toothMetadata = "id\tage\tsex\tteeth\n" +
	"p1\t34\tF\t11;21\n" +
	"p2\t51\tM\t36, 46 47\n" +
	"p3\t20\tF\t\n"

func TestFromKeyPoints(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, keyPointsMetadata), toothMetadata)
	writeFile(t, filepath.Join(root, "train", keyPointsDir, "p1.json"),
		`{"data": [[100, 50, 300, 150], [310, 50, 400, 160]], "image": {"width": 640, "height": 480}}`)
	writeFile(t, filepath.Join(root, "val", keyPointsDir, "p2.json"),
		`{"meta": {"source": "x"}, "shapes": {"boxes": [[1, 2, 3, 4], [5, 6, 7, 8]]}}`)
	writeFile(t, filepath.Join(root, "val", keyPointsDir, "p3.json"), `[[1, 2, 3, 4]]`)
	writeFile(t, filepath.Join(root, "val", keyPointsDir, "p4.json"), `{"data": `)
	writeFile(t, filepath.Join(root, "val", keyPointsDir, "75.json"), `{"data": `)

	ds, err := FromKeyPoints(root, []string{"train", "val", "test"}, DefaultExcludedIDs)
	require.NoError(t, err)

	require.Len(t, ds.Images, 1)
	p1 := ds.Images[0]
	assert.Equal(t, "p1", p1.FileName)
	assert.Equal(t, "train", p1.Split)
	assert.Equal(t, 640, p1.Width)
	assert.Equal(t, 480, p1.Height)
	require.Len(t, p1.Annotations, 2)
	assert.Equal(t, Annotation{Box: pixelBox(100, 50, 300, 150), Tooth: 11}, p1.Annotations[0])
	assert.Equal(t, 21, p1.Annotations[1].Tooth)

	// p2: 3 codes for 2 boxes, p3: no codes, p4: invalid JSON. 75 is excluded.
	require.Len(t, ds.Rejects, 3)
	assert.Equal(t, ErrMalformedInput, errors.Cause(ds.Rejects[0]))
	assert.Equal(t, ErrInvalidClass, errors.Cause(ds.Rejects[1]))
	assert.Equal(t, ErrMalformedInput, errors.Cause(ds.Rejects[2]))
}

func TestFromKeyPointsMissingMetadata(t *testing.T) {
	_, err := FromKeyPoints(t.TempDir(), nil, nil)
	assert.Equal(t, ErrMalformedInput, errors.Cause(err))
}

func TestFromKeyPointsExcludedIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, keyPointsMetadata), toothMetadata)
	writeFile(t, filepath.Join(root, "train", keyPointsDir, "p1.json"), `[[1, 2, 3, 4], [5, 6, 7, 8]]`)

	ds, err := FromKeyPoints(root, []string{"train"}, []string{"p1"})
	require.NoError(t, err)
	assert.Empty(t, ds.Images)
	assert.Empty(t, ds.Rejects)

	ds, err = LoadDataset(LoadOptions{Source: SourceKeyPoints, Root: root, Splits: []string{"train"}})
	require.NoError(t, err)
	assert.Len(t, ds.Images, 1)
}

func TestParseToothMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), keyPointsMetadata)
	writeFile(t, path, toothMetadata+"p5\t1\tM\t11;x\n")

	m, err := parseToothMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []int{11, 21}, m["p1"])
	assert.Equal(t, []int{36, 46, 47}, m["p2"])
	assert.Empty(t, m["p3"])
	assert.Equal(t, []int{11, -1}, m["p5"])
}
