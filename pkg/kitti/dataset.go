// Package kitti adapts the KITTI Multi-Object-Tracking benchmark for detector
// training and evaluation. It reads split index files, parses the ground truth
// of every frame into FrameRecords (caching them), writes detections in the
// benchmark's result format, and hands the results to an AP evaluator.
package kitti

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cyclopcam/kittimot/pkg/metrics"
	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/cyclopcam/kittimot/pkg/roicache"
	"github.com/cyclopcam/kittimot/pkg/storage"
	"github.com/cyclopcam/logs"
)

const DatasetName = "KittiMOT"

type Options struct {
	DataPath             string      // Directory that holds the split files, eg <DataPath>/val.txt
	ImageRoot            string      // Image IDs are relative to this directory. Empty means the working directory.
	ImageSet             string      // train, val, trainval, or test
	IndexFormat          IndexFormat // Line shape of the split file
	IgnoreUnknownClasses bool        // Skip objects whose class is not in the class table, instead of failing
	TrackSources         bool        // Fingerprint the label files, so that the cache policy can detect edits
	OverlapThreshold     float64     // IoU needed for a true positive. Zero means nn.DefaultOverlapThreshold.
}

// RunRecorder keeps a history of evaluation runs
type RunRecorder interface {
	SaveEvaluation(imageSet, resultFile string, numDetections int, overlapThreshold float64, classes []string, aps []float64) error
}

// Collaborators are the services that a Dataset delegates to.
// Store is required. Everything else has a default or is optional.
type Collaborators struct {
	Store       storage.Storage // Holds caches, result files, and evaluation indexes
	CachePolicy roicache.Policy // Defaults to roicache.UntilDeleted
	ImageSizer  ImageSizer      // Defaults to ReadImageSize
	AP          APComputer      // Required for evaluation
	Metrics     *metrics.Metrics
	History     RunRecorder
}

// Dataset is one split of the KITTI MOT benchmark
type Dataset struct {
	Name     string // eg "KittiMOT_val"
	ImageSet string
	Classes  []string
	Index    *Index

	log     logs.Log
	opt     Options
	store   storage.Storage
	cache   *roicache.Cache[[]*FrameRecord]
	sizer   ImageSizer
	ap      APComputer
	metrics *metrics.Metrics
	history RunRecorder
}

// Open loads the split index of a dataset
func Open(log logs.Log, opt Options, c Collaborators) (*Dataset, error) {
	if c.Store == nil {
		return nil, errors.New("A storage backend is required")
	}
	if opt.ImageSet == "" {
		return nil, errors.New("No image set specified")
	}
	if opt.OverlapThreshold == 0 {
		opt.OverlapThreshold = nn.DefaultOverlapThreshold
	}
	if c.ImageSizer == nil {
		c.ImageSizer = ReadImageSize
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}

	index, err := LoadIndex(filepath.Join(opt.DataPath, opt.ImageSet+".txt"), opt.IndexFormat)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		Name:     DatasetName + "_" + opt.ImageSet,
		ImageSet: opt.ImageSet,
		Classes:  nn.KittiClasses,
		Index:    index,
		log:      log,
		opt:      opt,
		store:    c.Store,
		cache:    roicache.New[[]*FrameRecord](log, c.Store, c.CachePolicy),
		sizer:    c.ImageSizer,
		ap:       c.AP,
		metrics:  c.Metrics,
		history:  c.History,
	}
	log.Infof("%v: %v images (%v index)", d.Name, d.NumImages(), index.Format)
	return d, nil
}

func (d *Dataset) NumImages() int {
	return d.Index.Len()
}

// Cache gives access to the ground truth cache, eg to install a different clock
func (d *Dataset) Cache() *roicache.Cache[[]*FrameRecord] {
	return d.cache
}

// Metrics returns the counters that this dataset updates
func (d *Dataset) Metrics() *metrics.Metrics {
	return d.metrics
}

func (d *Dataset) resolve(id string) string {
	return filepath.Join(d.opt.ImageRoot, id)
}

// ImagePath returns the image file of entry i
func (d *Dataset) ImagePath(i int) string {
	return d.resolve(d.Index.Entries[i].ImageID + ".png")
}

// LabelPath returns the annotation file of entry i
func (d *Dataset) LabelPath(i int) string {
	return d.LabelPathFromImageID(d.Index.Entries[i].ImageID)
}

func (d *Dataset) LabelPathFromImageID(imageID string) string {
	return d.resolve(LabelIDFromImageID(imageID) + ".txt")
}

// GTCacheName is the name of the ground truth cache inside the store
func (d *Dataset) GTCacheName() string {
	return "cache/" + d.Name + "_gt_roidb.gob"
}

// GTRoidb returns the ground truth of every frame in the index.
// If the store holds a cached copy that the cache policy accepts, it is returned
// without looking at the annotation files. Otherwise all annotations are parsed,
// and the result is cached.
func (d *Dataset) GTRoidb() ([]*FrameRecord, error) {
	fingerprint := ""
	if d.opt.TrackSources {
		labels := make([]string, d.NumImages())
		for i := range labels {
			labels[i] = d.LabelPath(i)
		}
		var err error
		if fingerprint, err = roicache.FileFingerprint(labels); err != nil {
			d.log.Warnf("Unable to fingerprint annotations: %v", err)
		}
	}

	name := d.GTCacheName()
	roidb, hit, err := d.cache.GetOrBuild(name, fingerprint, d.loadAllAnnotations)
	if err != nil {
		return nil, err
	}
	if hit {
		d.metrics.CacheHits.Inc()
		d.log.Infof("%v gt roidb loaded from %v", d.Name, name)
	} else {
		d.metrics.CacheMisses.Inc()
		d.log.Infof("Wrote gt roidb to %v", name)
	}
	return roidb, nil
}

func (d *Dataset) loadAllAnnotations() ([]*FrameRecord, error) {
	roidb := make([]*FrameRecord, 0, d.NumImages())
	for i := 0; i < d.NumImages(); i++ {
		rec, err := d.LoadAnnotations(i)
		if err != nil {
			return nil, err
		}
		roidb = append(roidb, rec)
	}
	return roidb, nil
}

// LoadAnnotations reads the image size and the label file of entry i
func (d *Dataset) LoadAnnotations(i int) (*FrameRecord, error) {
	entry := d.Index.Entries[i]
	d.log.Debugf("Loading annotations %v/%v (frame %v)", i+1, d.NumImages(), entry.FrameID)

	rec := &FrameRecord{
		Image:   d.ImagePath(i),
		FrameID: entry.FrameID,
	}
	if entry.Kind == EntrySegmented {
		rec.Pattern = d.resolve(entry.Segment.Pattern() + ".png")
		rec.SegmentID = entry.Segment.ID
		rec.SegmentLength = entry.Segment.Length
	}

	var err error
	rec.Width, rec.Height, err = d.sizer(rec.Image)
	if err != nil {
		return nil, err
	}

	labelPath := d.LabelPath(i)
	objects, err := ReadLabelFile(labelPath)
	if err != nil {
		return nil, err
	}

	classToIndex := nn.ClassToIndex(d.Classes)
	for _, obj := range objects {
		cls, ok := classToIndex[obj.Class]
		if !ok {
			if d.opt.IgnoreUnknownClasses {
				d.metrics.ObjectsDropped.WithLabelValues(metrics.DropUnknownClass).Inc()
				continue
			}
			return nil, fmt.Errorf("%w '%v' in %v", ErrUnknownClass, obj.Class, labelPath)
		}
		box, ok := ToPixelBox(obj.Box, rec.Width, rec.Height)
		if !ok {
			d.log.Warnf("Dropping %v at %v in %v, which lies outside the %vx%v image", obj.Class, obj.Box, labelPath, rec.Width, rec.Height)
			d.metrics.ObjectsDropped.WithLabelValues(metrics.DropOutsideImage).Inc()
			continue
		}
		rec.addObject(box, cls, len(d.Classes))
		d.metrics.ObjectsKept.Inc()
	}
	d.metrics.FramesParsed.Inc()
	return rec, nil
}
