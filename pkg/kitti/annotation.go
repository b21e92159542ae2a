package kitti

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cyclopcam/kittimot/pkg/nn"
)

var ErrUnknownClass = errors.New("Unknown class")

// Label files contain one object per line. Field 2 is the class name,
// and fields 6..9 are the box (left, top, right, bottom).
const (
	labelFieldClass = 2
	labelFieldBox   = 6
	minLabelFields  = 10
)

// LabelObject is one object from a label file, with its box as written in the file
type LabelObject struct {
	Class string
	Box   nn.Box
}

func ParseLabelLine(line string) (LabelObject, error) {
	f := strings.Fields(line)
	if len(f) < minLabelFields {
		return LabelObject{}, fmt.Errorf("Expected at least %v fields, but found %v", minLabelFields, len(f))
	}
	var v [4]float32
	for i := range v {
		x, err := strconv.ParseFloat(f[labelFieldBox+i], 32)
		if err != nil {
			return LabelObject{}, fmt.Errorf("Invalid box coordinate '%v'", f[labelFieldBox+i])
		}
		v[i] = float32(x)
	}
	return LabelObject{
		Class: f[labelFieldClass],
		Box:   nn.Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]},
	}, nil
}

// ReadLabelFile parses every non-blank line of a label file
func ReadLabelFile(filename string) ([]LabelObject, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Label file does not exist: %v", filename)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	objects := []LabelObject{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		obj, err := ParseLabelLine(line)
		if err != nil {
			return nil, fmt.Errorf("%v:%v: %w", filename, lineNo, err)
		}
		objects = append(objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read %v: %w", filename, err)
	}
	return objects, nil
}

// LabelIDFromImageID returns the label file of an image, without the ".txt" extension.
// Labels live in a parallel tree to the images, with "image_02" replaced by "label_new".
func LabelIDFromImageID(imageID string) string {
	return strings.ReplaceAll(imageID, "image_02", "label_new")
}
