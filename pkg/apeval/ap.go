package apeval

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/cyclopcam/kittimot/pkg/results"
)

// ClassEval holds the precision/recall curve of one class
type ClassEval struct {
	NumPositives int       // Number of ground truth objects
	Recall       []float64 // One element per detection, in order of decreasing confidence
	Precision    []float64
	AP           float64
}

// frameTruth is the ground truth of one class in one frame
type frameTruth struct {
	boxes   []nn.Box
	matched []bool
	index   *flatbush.Flatbush[float32]
}

func newFrameTruth(boxes []nn.Box) *frameTruth {
	ft := &frameTruth{
		boxes:   boxes,
		matched: make([]bool, len(boxes)),
	}
	if len(boxes) != 0 {
		ft.index = flatbush.NewFlatbush[float32]()
		ft.index.Reserve(len(boxes))
		for _, b := range boxes {
			ft.index.Add(b.X1, b.Y1, b.X2, b.Y2)
		}
		ft.index.Finish()
	}
	return ft
}

// bestMatch returns the ground truth box with the highest IoU, or -1 if nothing overlaps
func (ft *frameTruth) bestMatch(b nn.Box) (int, float32) {
	if ft.index == nil {
		return -1, 0
	}
	best := -1
	bestIoU := float32(0)
	// Boxes are inclusive of their last pixel, so boxes that are up to 1 pixel apart still intersect
	for _, j := range ft.index.Search(b.X1-1, b.Y1-1, b.X2+1, b.Y2+1) {
		iou := b.IOU(ft.boxes[j])
		if iou > bestIoU {
			best = j
			bestIoU = iou
		}
	}
	return best, bestIoU
}

// EvaluateClass scores the detections of a single class.
// 'truth' maps frame ID to the ground truth boxes of the class in that frame.
// Every frame that was evaluated must be present in 'truth', even if it has no boxes.
// Detections on frames that are not in 'truth' are ignored.
func EvaluateClass(dets []results.Row, truth map[int][]nn.Box, overlapThreshold float64) ClassEval {
	frames := map[int]*frameTruth{}
	npos := 0
	for frameID, boxes := range truth {
		frames[frameID] = newFrameTruth(boxes)
		npos += len(boxes)
	}

	sorted := make([]results.Row, 0, len(dets))
	for _, d := range dets {
		if _, ok := frames[d.FrameID]; ok {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	tp := 0
	fp := 0
	ev := ClassEval{
		NumPositives: npos,
		Recall:       make([]float64, len(sorted)),
		Precision:    make([]float64, len(sorted)),
	}
	for i, d := range sorted {
		ft := frames[d.FrameID]
		j, iou := ft.bestMatch(d.Box)
		if j != -1 && float64(iou) >= overlapThreshold && !ft.matched[j] {
			ft.matched[j] = true
			tp++
		} else {
			fp++
		}
		if npos != 0 {
			ev.Recall[i] = float64(tp) / float64(npos)
		}
		ev.Precision[i] = float64(tp) / float64(tp+fp)
	}
	if npos != 0 {
		ev.AP = AveragePrecision(ev.Recall, ev.Precision)
	}
	return ev
}

// AveragePrecision is the area under the precision/recall curve, after
// making precision monotonically decreasing (the VOC 2010+ definition).
func AveragePrecision(recall, precision []float64) float64 {
	n := len(recall)
	mrec := make([]float64, n+2)
	mpre := make([]float64, n+2)
	copy(mrec[1:], recall)
	copy(mpre[1:], precision)
	mrec[n+1] = 1

	for i := n; i >= 0; i-- {
		mpre[i] = max(mpre[i], mpre[i+1])
	}

	ap := 0.0
	for i := 0; i <= n; i++ {
		if mrec[i+1] != mrec[i] {
			ap += (mrec[i+1] - mrec[i]) * mpre[i+1]
		}
	}
	return ap
}
