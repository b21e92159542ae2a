package apeval

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/kittimot/pkg/kitti"
	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/cyclopcam/kittimot/pkg/results"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, fn string, width, height int) {
	require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0755))
	out, err := os.Create(fn)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, image.NewGray(image.Rect(0, 0, width, height))))
	require.NoError(t, out.Close())
}

func TestEvaluateDataset(t *testing.T) {
	env := newTestEnv(t)
	log := logs.NewTestingLog(t)

	car := nn.Box{X1: 10, Y1: 20, X2: 50, Y2: 80}
	ped := nn.Box{X1: 60, Y1: 10, X2: 70, Y2: 90}
	cyc := nn.Box{X1: 5, Y1: 5, X2: 40, Y2: 40}

	require.NoError(t, os.MkdirAll(filepath.Join(env.root, "data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "data", "val.txt"), []byte("image_02/0000 0 000000 2\n"), 0644))
	writePNG(t, filepath.Join(env.root, "image_02/0000/000000.png"), 100, 100)
	env.writeLabels(t, "image_02/0000/000000", labelLine("Car", car), labelLine("Pedestrian", ped))
	env.writeLabels(t, "image_02/0000/000001", labelLine("Cyclist", cyc), labelLine("DontCare", car))

	ds, err := kitti.Open(log, kitti.Options{
		DataPath:  filepath.Join(env.root, "data"),
		ImageRoot: env.root,
		ImageSet:  "val",
	}, kitti.Collaborators{Store: env.store})
	require.NoError(t, err)
	ds.SetAP(NewEvaluator(log, env.store, nil, ds.LabelPathFromImageID))

	// The split has one segmented entry, but the evaluator sees both of its frames
	chunk := func(frameID int, objects ...nn.ObjectDetection) results.Chunk {
		c, err := results.ChunkFromImageLabels(len(ds.Classes), []nn.ImageLabels{{FrameID: frameID, Objects: objects}})
		require.NoError(t, err)
		return c
	}
	report, err := ds.EvaluateDetectionsMultiprocess([]results.Chunk{
		chunk(1, nn.ObjectDetection{Class: nn.KittiCyclist, Confidence: 0.9, Box: cyc}),
		chunk(0,
			nn.ObjectDetection{Class: nn.KittiCar, Confidence: 0.9, Box: car},
			nn.ObjectDetection{Class: nn.KittiPedestrian, Confidence: 0.8, Box: ped}),
	})
	require.NoError(t, err)
	require.Equal(t, "AP for Car = 1.0000\nAP for Pedestrian = 1.0000\nAP for Cyclist = 1.0000\nMean AP@0.5 = 1.0000\n\n", report)
}
