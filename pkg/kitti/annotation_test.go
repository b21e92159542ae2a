package kitti

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestParseLabelLine(t *testing.T) {
	obj, err := ParseLabelLine("0 -1 Car 0 0 0 10.0 20.0 100.0 200.0 1.5 1.6 3.9 0 0 0 0")
	require.NoError(t, err)
	require.Equal(t, "Car", obj.Class)
	require.Equal(t, nn.Box{X1: 10, Y1: 20, X2: 100, Y2: 200}, obj.Box)

	_, err = ParseLabelLine("0 -1 Car 0 0 0 10.0 20.0 100.0")
	require.Error(t, err)
	_, err = ParseLabelLine("0 -1 Car 0 0 0 10.0 twenty 100.0 200.0")
	require.ErrorContains(t, err, "twenty")
}

func TestReadLabelFile(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadLabelFile(filepath.Join(dir, "missing.txt"))
	require.ErrorContains(t, err, "Label file does not exist")

	fn := filepath.Join(dir, "000000.txt")
	require.NoError(t, os.WriteFile(fn, []byte("0 1 Car 0 0 0 1 2 3 4 0 0 0 0 0 0 0\n\n0 2 DontCare 0 0 0 5 6 7 8 0 0 0 0 0 0 0\n"), 0644))
	objects, err := ReadLabelFile(fn)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, "DontCare", objects[1].Class)

	require.NoError(t, os.WriteFile(fn, []byte("0 1 Car 0 0 0 1 2 3 4 0 0 0 0 0 0 0\nbroken\n"), 0644))
	_, err = ReadLabelFile(fn)
	require.ErrorContains(t, err, "000000.txt:2:")
}

func TestLabelIDFromImageID(t *testing.T) {
	require.Equal(t, "training/label_new/0001/000005", LabelIDFromImageID("training/image_02/0001/000005"))
	require.Equal(t, "foo/000100", LabelIDFromImageID("foo/000100"))
}

func TestToPixelBox(t *testing.T) {
	b, ok := ToPixelBox(nn.Box{X1: 10, Y1: 20, X2: 100, Y2: 200}, 50, 300)
	require.True(t, ok)
	require.Equal(t, PixelBox{10, 20, 49, 200}, b)

	b, ok = ToPixelBox(nn.Box{X1: -5.5, Y1: -1, X2: 10.7, Y2: 12.2}, 50, 300)
	require.True(t, ok)
	require.Equal(t, PixelBox{0, 0, 10, 12}, b)

	// Entirely to the right of the image
	_, ok = ToPixelBox(nn.Box{X1: 60, Y1: 20, X2: 70, Y2: 30}, 50, 300)
	require.False(t, ok)

	// Zero area boxes are kept
	b, ok = ToPixelBox(nn.Box{X1: 5, Y1: 5, X2: 5, Y2: 5}, 50, 300)
	require.True(t, ok)
	require.Equal(t, PixelBox{5, 5, 5, 5}, b)
}

func TestToPixelBoxInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		w := 1 + rng.Intn(2000)
		h := 1 + rng.Intn(2000)
		x1 := rng.Float32()*3000 - 500
		y1 := rng.Float32()*3000 - 500
		raw := nn.Box{X1: x1, Y1: y1, X2: x1 + rng.Float32()*800, Y2: y1 + rng.Float32()*800}
		b, ok := ToPixelBox(raw, w, h)
		if !ok {
			continue
		}
		require.LessOrEqual(t, b.X1, b.X2)
		require.LessOrEqual(t, b.Y1, b.Y2)
		require.Less(t, int(b.X2), w)
		require.Less(t, int(b.Y2), h)
	}
}
