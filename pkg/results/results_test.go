package results

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/stretchr/testify/require"
)

func randomDetections(rng *rand.Rand, nClasses, nFrames int) (Detections, int) {
	dets := make(Detections, nClasses)
	total := 0
	for cls := 1; cls < nClasses; cls++ {
		dets[cls] = make([][]Detection, nFrames)
		for im := 0; im < nFrames; im++ {
			n := rng.Intn(4)
			for k := 0; k < n; k++ {
				x1 := rng.Float32() * 500
				y1 := rng.Float32() * 300
				dets[cls][im] = append(dets[cls][im], Detection{
					Box:   nn.Box{X1: x1, Y1: y1, X2: x1 + rng.Float32()*100, Y2: y1 + rng.Float32()*50},
					Score: rng.Float32(),
				})
			}
			total += n
		}
	}
	return dets, total
}

func TestWriteReadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	frameIDs := []int{10, 11, 12, 13, 14}
	dets, total := randomDetections(rng, len(nn.KittiClasses), len(frameIDs))
	require.Greater(t, total, 0)

	buf := bytes.Buffer{}
	n, err := Write(&buf, nn.KittiClasses, frameIDs, dets)
	require.NoError(t, err)
	require.Equal(t, total, n)
	require.Equal(t, total, strings.Count(buf.String(), "\n"))

	rows, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, total)

	// Class-then-image order
	i := 0
	for cls := 1; cls < len(nn.KittiClasses); cls++ {
		for im, frameID := range frameIDs {
			for _, d := range dets[cls][im] {
				r := rows[i]
				require.Equal(t, frameID, r.FrameID)
				require.Equal(t, cls, r.ClassID)
				require.InDelta(t, d.Score, r.Confidence, 0.5e-4+1e-6)
				require.InDelta(t, d.Box.X1, r.Box.X1, 0.5e-2+1e-4)
				require.InDelta(t, d.Box.Y1, r.Box.Y1, 0.5e-2+1e-4)
				require.InDelta(t, d.Box.X2, r.Box.X2, 0.5e-2+1e-4)
				require.InDelta(t, d.Box.Y2, r.Box.Y2, 0.5e-2+1e-4)
				i++
			}
		}
	}
}

func TestFormatRow(t *testing.T) {
	r := Row{FrameID: 7, ClassID: 2, Confidence: 0.98766, Box: nn.Box{X1: 1, Y1: 2.346, X2: 100.5, Y2: 200}}
	require.Equal(t, "7 2 0.9877 1.00 2.35 100.50 200.00", FormatRow(r))
}

func TestParseRowErrors(t *testing.T) {
	_, err := ParseRow("1 2 0.5 1 2 3")
	require.Error(t, err)
	_, err = ParseRow("x 2 0.5 1 2 3 4")
	require.Error(t, err)
	_, err = ParseRow("1 2 0.5 1 2 3 four")
	require.Error(t, err)
}

func TestWriteShapeMismatch(t *testing.T) {
	dets := Detections{nil, make([][]Detection, 2)}
	_, err := Write(&bytes.Buffer{}, nn.KittiClasses, []int{1, 2}, dets)
	require.ErrorIs(t, err, ErrShape)

	dets = Detections{nil, make([][]Detection, 1), make([][]Detection, 2), make([][]Detection, 2)}
	_, err = Write(&bytes.Buffer{}, nn.KittiClasses, []int{1, 2}, dets)
	require.ErrorIs(t, err, ErrShape)
}

func TestMergeIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	chunks := []Chunk{}
	total := 0
	for c := 0; c < 4; c++ {
		frameIDs := []int{c*3 + 0, c*3 + 1, c*3 + 2}
		dets, n := randomDetections(rng, len(nn.KittiClasses), len(frameIDs))
		chunks = append(chunks, Chunk{Detections: dets, FrameIDs: frameIDs})
		total += n
	}

	expected := bytes.Buffer{}
	n, err := WriteMerged(&expected, nn.KittiClasses, chunks)
	require.NoError(t, err)
	require.Equal(t, total, n)

	// Workers finishing in a different order produce the same file
	reversed := []Chunk{chunks[3], chunks[1], chunks[0], chunks[2]}
	actual := bytes.Buffer{}
	_, err = WriteMerged(&actual, nn.KittiClasses, reversed)
	require.NoError(t, err)
	require.Equal(t, expected.String(), actual.String())

	rows, err := Read(&actual)
	require.NoError(t, err)
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, rows[i-1].FrameID, rows[i].FrameID)
	}
}
