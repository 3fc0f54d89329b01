package toothconv

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	tensorflow "github.com/ryszard/tfutils/proto/tensorflow/core/example"
	"github.com/sirupsen/logrus"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// tfRecordImage is an exported image with its YOLO label lines.
type tfRecordImage struct {
	path  string
	lines []string
}

// toTFRecord converts an exported image to the object detection feature map. Label ids are the
// dense class indices plus one, as id 0 is reserved for the background.
func toTFRecord(img tfRecordImage) (TFFeatureMap, error) {
	// Get the image width and height.
	cfg, format, err := decodeImageConfig(img.path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	// Read the image data.
	imgData, err := os.ReadFile(img.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 12)
	f["image/height"] = cfg.Height
	f["image/width"] = cfg.Width
	f["image/filename"] = img.path
	f["image/source_id"] = img.path
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(img.lines)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	for _, line := range img.lines {
		l, err := ParseLabelLine(line)
		if err != nil {
			return nil, err
		}
		idx, err := strconv.Atoi(l.Class)
		if err != nil {
			return nil, fmt.Errorf("invalid class index in %q", line)
		}
		code, err := IndexToFDI(idx)
		if err != nil {
			return nil, err
		}

		cx, cy, w, h := l.Values[0], l.Values[1], l.Values[2], l.Values[3]
		xmins = append(xmins, float32(cx-w/2))
		ymins = append(ymins, float32(cy-h/2))
		xmaxs = append(xmaxs, float32(cx+w/2))
		ymaxs = append(ymaxs, float32(cy+h/2))
		classes = append(classes, strconv.Itoa(code))
		classIDs = append(classIDs, int64(idx+1))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the exported images
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// The label map for the 32 tooth classes is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data []tfRecordImage, numShards int,
	log logrus.FieldLogger) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, img := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return err
				}
				shardFile = nil
			}

			// Create the new shard file.
			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		features, err := toTFRecord(img)
		if err != nil {
			log.WithFields(logrus.Fields{"image": img.path, "error": err}).Warn("Failed to convert")
			continue
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			_ = shardFile.Close()
			return fmt.Errorf("failed to write example: %v", err)
		}
	}

	if shardFile != nil {
		if err := shardFile.Close(); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{"path": recordFilePath, "examples": len(data), "shards": numShards}).
		Info("Wrote TFRecord")
	return saveTFRecordLabelMap(labelMapPath)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the label map of the tooth classes in prototxt format to path.
func saveTFRecordLabelMap(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	for i, code := range fdiCodes {
		if _, err := fmt.Fprintf(file, "item {\n  id: %d\n  name: '%d'\n}\n", i+1, code); err != nil {
			return fmt.Errorf("failed to write the label map %q: %v", path, err)
		}
	}

	return nil
}
