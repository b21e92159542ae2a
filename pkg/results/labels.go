package results

import (
	"fmt"

	"github.com/cyclopcam/kittimot/pkg/nn"
)

// FromImageLabels arranges per-frame detections (as written by an inference tool)
// into the [class][image][k] layout, where image follows 'frameIDs'.
// Frames that are missing from 'labels' have no detections.
func FromImageLabels(numClasses int, frameIDs []int, labels []nn.ImageLabels) (Detections, error) {
	frameToImage := make(map[int]int, len(frameIDs))
	for i, id := range frameIDs {
		frameToImage[id] = i
	}
	dets := make(Detections, numClasses)
	for cls := range dets {
		dets[cls] = make([][]Detection, len(frameIDs))
	}
	for _, im := range labels {
		i, ok := frameToImage[im.FrameID]
		if !ok {
			return nil, fmt.Errorf("%w: frame %v is not part of the image set", ErrShape, im.FrameID)
		}
		for _, obj := range im.Objects {
			if obj.Class <= 0 || obj.Class >= numClasses {
				return nil, fmt.Errorf("%w: class %v of frame %v is out of range", ErrShape, obj.Class, im.FrameID)
			}
			dets[obj.Class][i] = append(dets[obj.Class][i], Detection{Box: obj.Box, Score: obj.Confidence})
		}
	}
	return dets, nil
}

// ChunkFromImageLabels is FromImageLabels for the output of one worker, which covers
// exactly the frames in 'labels'.
func ChunkFromImageLabels(numClasses int, labels []nn.ImageLabels) (Chunk, error) {
	frameIDs := make([]int, len(labels))
	for i, im := range labels {
		frameIDs[i] = im.FrameID
	}
	dets, err := FromImageLabels(numClasses, frameIDs, labels)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Detections: dets, FrameIDs: frameIDs}, nil
}
