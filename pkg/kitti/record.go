package kitti

import (
	"github.com/cyclopcam/kittimot/pkg/nn"
)

// PixelBox is a ground truth box in integer pixel coordinates (inclusive)
type PixelBox struct {
	X1 uint16
	Y1 uint16
	X2 uint16
	Y2 uint16
}

func (b PixelBox) Box() nn.Box {
	return nn.Box{X1: float32(b.X1), Y1: float32(b.Y1), X2: float32(b.X2), Y2: float32(b.Y2)}
}

// ToPixelBox clamps b to an image of the given size, and truncates it to whole pixels.
// Returns false if the clamped box is inverted, which happens when no part of
// the box lies inside the image.
func ToPixelBox(b nn.Box, width, height int) (PixelBox, bool) {
	c := b.Clamp(width, height)
	if c.IsInverted() {
		return PixelBox{}, false
	}
	return PixelBox{
		X1: uint16(c.X1),
		Y1: uint16(c.Y1),
		X2: uint16(c.X2),
		Y2: uint16(c.Y2),
	}, true
}

// FrameRecord is the ground truth of one frame.
// Boxes, GTClasses, GTOverlaps, MaxClasses and MaxOverlaps all have one element per object.
type FrameRecord struct {
	Image   string // Path to the image file
	FrameID int

	// Only populated for segmented indexes
	Pattern       string // printf pattern of the segment's image paths, eg "data/0001/%06d.png"
	SegmentID     int
	SegmentLength int

	Height int
	Width  int

	Boxes       []PixelBox
	GTClasses   []int32
	GTOverlaps  [][]float32 // One-hot row over the class table
	MaxClasses  []int       // Index of the largest value in each GTOverlaps row
	MaxOverlaps []float32   // Largest value in each GTOverlaps row
	Flipped     bool
}

func (r *FrameRecord) HasSegment() bool {
	return r.Pattern != ""
}

func (r *FrameRecord) NumObjects() int {
	return len(r.Boxes)
}

// addObject appends a ground truth object of class 'cls'
func (r *FrameRecord) addObject(box PixelBox, cls, numClasses int) {
	overlaps := make([]float32, numClasses)
	overlaps[cls] = 1
	r.Boxes = append(r.Boxes, box)
	r.GTClasses = append(r.GTClasses, int32(cls))
	r.GTOverlaps = append(r.GTOverlaps, overlaps)
	r.MaxClasses = append(r.MaxClasses, argmax(overlaps))
	r.MaxOverlaps = append(r.MaxOverlaps, overlaps[argmax(overlaps)])
}

// FlippedCopy returns a copy of the record with every box mirrored horizontally
func (r *FrameRecord) FlippedCopy() *FrameRecord {
	c := *r
	c.Boxes = nil
	for _, b := range r.Boxes {
		f := b.Box().FlipX(r.Width)
		c.Boxes = append(c.Boxes, PixelBox{X1: uint16(f.X1), Y1: b.Y1, X2: uint16(f.X2), Y2: b.Y2})
	}
	c.GTClasses = append([]int32(nil), r.GTClasses...)
	c.GTOverlaps = nil
	for _, row := range r.GTOverlaps {
		c.GTOverlaps = append(c.GTOverlaps, append([]float32(nil), row...))
	}
	c.MaxClasses = append([]int(nil), r.MaxClasses...)
	c.MaxOverlaps = append([]float32(nil), r.MaxOverlaps...)
	c.Flipped = !r.Flipped
	return &c
}

// AppendFlipped returns roidb followed by a horizontally mirrored copy of every record
func AppendFlipped(roidb []*FrameRecord) []*FrameRecord {
	out := make([]*FrameRecord, 0, len(roidb)*2)
	out = append(out, roidb...)
	for _, r := range roidb {
		out = append(out, r.FlippedCopy())
	}
	return out
}

func argmax(v []float32) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
