package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/kittimot/pkg/apeval"
	"github.com/cyclopcam/kittimot/pkg/config"
	"github.com/cyclopcam/kittimot/pkg/evaldb"
	"github.com/cyclopcam/kittimot/pkg/kitti"
	"github.com/cyclopcam/kittimot/pkg/metrics"
	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/cyclopcam/kittimot/pkg/results"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("kittimot", "KITTI MOT ground truth cache and detector evaluation")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file", Required: true})
	imageSet := parser.String("s", "set", &argparse.Options{Help: "Image set (overrides the config file)", Required: false})
	indexFormat := parser.Selector("", "format", []string{"auto", "paired", "segmented"}, &argparse.Options{Help: "Split file format (overrides the config file)", Required: false})
	threshold := parser.Float("", "overlap", &argparse.Options{Help: "IoU threshold for a true positive (overrides the config file)", Required: false, Default: 0.0})

	roidbCmd := parser.NewCommand("roidb", "Build or load the ground truth cache, and print a summary")
	rebuild := roidbCmd.Flag("", "rebuild", &argparse.Options{Help: "Discard the existing cache first", Default: false})
	flipped := roidbCmd.Flag("", "flipped", &argparse.Options{Help: "Include horizontally mirrored copies in the summary", Default: false})

	writeCmd := parser.NewCommand("write", "Write the result file from detection JSON files")
	writeInputs := writeCmd.StringList("i", "input", &argparse.Options{Help: "Detections JSON ([]ImageLabels). Give more than once for the output of several workers", Required: true})

	evalCmd := parser.NewCommand("eval", "Evaluate detections. Without inputs, the existing result file is scored")
	evalInputs := evalCmd.StringList("i", "input", &argparse.Options{Help: "Detections JSON ([]ImageLabels). Give more than once for the output of several workers", Required: false})

	historyCmd := parser.NewCommand("history", "List previous evaluation runs")
	limit := historyCmd.Int("n", "limit", &argparse.Options{Help: "Maximum number of runs to show", Default: 20})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	cfg, err := config.Load(*configFile)
	check(err)
	if *imageSet != "" {
		cfg.ImageSet = *imageSet
	}
	if *indexFormat != "" {
		cfg.IndexFormat = *indexFormat
	}
	if *threshold != 0 {
		cfg.OverlapThreshold = *threshold
	}
	check(cfg.Validate())

	if historyCmd.Happened() {
		check(showHistory(logger, cfg, *limit))
		return
	}

	store, err := cfg.OpenStorage(logger)
	check(err)
	policy, err := cfg.CachePolicy()
	check(err)
	opt, err := cfg.DatasetOptions()
	check(err)

	m := metrics.New()
	collab := kitti.Collaborators{
		Store:       store,
		CachePolicy: policy,
		Metrics:     m,
	}
	if cfg.EvalDB != "" {
		db, err := evaldb.Open(logger, cfg.EvalDB)
		check(err)
		collab.History = db
	}

	ds, err := kitti.Open(logger, opt, collab)
	check(err)
	ds.SetAP(apeval.NewEvaluator(logger, store, policy, ds.LabelPathFromImageID))

	switch {
	case roidbCmd.Happened():
		if *rebuild {
			check(ds.Cache().Invalidate(ds.GTCacheName()))
		}
		roidb, err := ds.GTRoidb()
		check(err)
		if *flipped {
			roidb = kitti.AppendFlipped(roidb)
		}
		printSummary(ds, roidb)
	case writeCmd.Happened():
		chunks, merge, err := loadInputs(ds, *writeInputs)
		check(err)
		if !merge {
			_, err = ds.WriteResults(chunks[0].Detections)
		} else {
			_, err = ds.WriteResultsMerged(chunks)
		}
		check(err)
	case evalCmd.Happened():
		var report string
		if len(*evalInputs) == 0 {
			report, err = ds.EvaluateResultFile()
		} else {
			var chunks []results.Chunk
			var merge bool
			chunks, merge, err = loadInputs(ds, *evalInputs)
			check(err)
			if !merge {
				report, err = ds.EvaluateDetections(chunks[0].Detections)
			} else {
				report, err = ds.EvaluateDetectionsMultiprocess(chunks)
			}
		}
		check(err)
		fmt.Print(report)
	}

	if cfg.MetricsFile != "" {
		check(m.WriteTextfile(cfg.MetricsFile))
	}
}

func readImageLabels(filename string) ([]nn.ImageLabels, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	labels := []nn.ImageLabels{}
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	return labels, nil
}

// loadInputs reads detection files, and reports whether the chunks must go
// through the multiprocess merge.
func loadInputs(ds *kitti.Dataset, filenames []string) ([]results.Chunk, bool, error) {
	labelSets := [][]nn.ImageLabels{}
	for _, fn := range filenames {
		labels, err := readImageLabels(fn)
		if err != nil {
			return nil, false, err
		}
		labelSets = append(labelSets, labels)
	}
	return makeChunks(len(ds.Classes), ds.Index, labelSets)
}

// makeChunks lays detections out for the result writer.
// A single paired input covers the whole image set, in index order.
// Segmented sets (whose frames are not all listed in the index) and
// multiple inputs are keyed by the frame ID of each entry instead.
func makeChunks(numClasses int, ix *kitti.Index, labelSets [][]nn.ImageLabels) ([]results.Chunk, bool, error) {
	merge := len(labelSets) != 1 || ix.Format == kitti.IndexFormatSegmented
	chunks := []results.Chunk{}
	for i, labels := range labelSets {
		var chunk results.Chunk
		var err error
		if merge {
			chunk, err = results.ChunkFromImageLabels(numClasses, labels)
		} else {
			chunk.FrameIDs = ix.FrameIDs()
			chunk.Detections, err = results.FromImageLabels(numClasses, chunk.FrameIDs, labels)
		}
		if err != nil {
			return nil, false, fmt.Errorf("Input %v: %w", i, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, merge, nil
}

func printSummary(ds *kitti.Dataset, roidb []*kitti.FrameRecord) {
	perClass := make([]int, len(ds.Classes))
	segmented := 0
	for _, r := range roidb {
		for _, c := range r.GTClasses {
			perClass[c]++
		}
		if r.HasSegment() {
			segmented++
		}
	}
	fmt.Printf("%v: %v records (%v with segments)\n", ds.Name, len(roidb), segmented)
	for cls := 1; cls < len(ds.Classes); cls++ {
		fmt.Printf("  %-12v %v\n", ds.Classes[cls], perClass[cls])
	}
}

func showHistory(logger logs.Log, cfg *config.Config, limit int) error {
	if cfg.EvalDB == "" {
		return fmt.Errorf("No evalDB configured")
	}
	db, err := evaldb.Open(logger, cfg.EvalDB)
	if err != nil {
		return err
	}
	runs, err := db.ListRuns(cfg.ImageSet, limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%v  %v  %v  detections: %v  mAP@%v: %.4f\n", r.ID, r.StartedAt.Get().Local().Format("2006-01-02 15:04:05"), r.ImageSet, r.NumDetections, r.OverlapThreshold, r.MeanAP)
		aps, err := db.ClassAPs(r.ID)
		if err != nil {
			return err
		}
		for _, ap := range aps {
			fmt.Printf("    %-12v %.4f\n", ap.Class, ap.AP)
		}
	}
	return nil
}
