package nn

import (
	"github.com/chewxy/math32"
)

// Box is an axis-aligned box in pixel coordinates.
// X2 and Y2 are inclusive, so a box with X1 == X2 is one pixel wide.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b Box) Width() float32 {
	return b.X2 - b.X1 + 1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1 + 1
}

func (b Box) Area() float32 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Returns true if the box has X2 < X1 or Y2 < Y1
func (b Box) IsInverted() bool {
	return b.X2 < b.X1 || b.Y2 < b.Y1
}

func (b Box) Intersection(o Box) Box {
	return Box{
		X1: math32.Max(b.X1, o.X1),
		Y1: math32.Max(b.Y1, o.Y1),
		X2: math32.Min(b.X2, o.X2),
		Y2: math32.Min(b.Y2, o.Y2),
	}
}

// Intersection over Union
func (b Box) IOU(o Box) float32 {
	inter := b.Intersection(o).Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Clamp limits the box to an image of the given size.
// Only the top-left corner is raised to zero, and only the bottom-right corner
// is lowered to the last pixel, so a box that lies entirely outside the image
// comes back inverted.
func (b Box) Clamp(width, height int) Box {
	return Box{
		X1: math32.Max(b.X1, 0),
		Y1: math32.Max(b.Y1, 0),
		X2: math32.Min(b.X2, float32(width-1)),
		Y2: math32.Min(b.Y2, float32(height-1)),
	}
}

// FlipX mirrors the box horizontally inside an image of the given width
func (b Box) FlipX(width int) Box {
	w := float32(width)
	return Box{
		X1: w - b.X2 - 1,
		Y1: b.Y1,
		X2: w - b.X1 - 1,
		Y2: b.Y2,
	}
}
