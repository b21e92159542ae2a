// Package nn holds the detection primitives shared by the dataset adapter
// and the evaluator: boxes, detections, and the KITTI class table.
package nn

// Overlap (IoU) that a detection must reach with a ground truth box to count as a true positive
const DefaultOverlapThreshold = 0.5

// ImageLabels are the objects in a single frame
type ImageLabels struct {
	FrameID int               `json:"frameID"`
	Objects []ObjectDetection `json:"objects"`
}
