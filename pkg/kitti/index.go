package kitti

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// IndexFormat declares which line shape a split file uses
type IndexFormat string

const (
	IndexFormatAuto      IndexFormat = "auto"      // Decide from the first line, and require all others to match
	IndexFormatPaired    IndexFormat = "paired"    // "image_id frame_id"
	IndexFormatSegmented IndexFormat = "segmented" // "prefix frame_id segment_id segment_length"
)

func ParseIndexFormat(s string) (IndexFormat, error) {
	switch IndexFormat(s) {
	case "", IndexFormatAuto:
		return IndexFormatAuto, nil
	case IndexFormatPaired, IndexFormatSegmented:
		return IndexFormat(s), nil
	}
	return "", fmt.Errorf("Unknown index format '%v' (expected auto, paired, or segmented)", s)
}

func (f IndexFormat) numTokens() int {
	switch f {
	case IndexFormatPaired:
		return 2
	case IndexFormatSegmented:
		return 4
	}
	return 0
}

type EntryKind int

const (
	EntryPaired EntryKind = iota
	EntrySegmented
)

// Segment is a run of consecutive frames of one sequence.
// The images of the segment are Prefix/<ID>, Prefix/<ID+1>, ..., zero padded to 6 digits.
type Segment struct {
	Prefix string
	ID     int
	Length int
}

// Pattern returns the printf pattern of the segment's image IDs
func (s Segment) Pattern() string {
	return s.Prefix + "/%06d"
}

// ImageID returns the image ID of frame 'offset' within the segment
func (s Segment) ImageID(offset int) string {
	return fmt.Sprintf(s.Pattern(), s.ID+offset)
}

// IndexEntry is one line of a split file
type IndexEntry struct {
	Kind    EntryKind
	ImageID string
	FrameID int
	Segment Segment // Only populated when Kind is EntrySegmented
}

// Index is the list of frames in a split
type Index struct {
	Filename string
	Format   IndexFormat // Never IndexFormatAuto
	Entries  []IndexEntry
}

// EvalLine is one line of an evaluation index file
type EvalLine struct {
	ImageID string
	FrameID int
}

// LoadIndex reads a split file such as <data>/val.txt
func LoadIndex(filename string, format IndexFormat) (*Index, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Index file does not exist: %v", filename)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIndex(f, filename, format)
}

// ParseIndex reads split file lines from r. 'name' is only used in error messages.
func ParseIndex(r io.Reader, name string, format IndexFormat) (*Index, error) {
	if format == "" {
		format = IndexFormatAuto
	}
	ix := &Index{
		Filename: name,
		Format:   format,
	}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		if ix.Format == IndexFormatAuto {
			switch len(tokens) {
			case 2:
				ix.Format = IndexFormatPaired
			case 4:
				ix.Format = IndexFormatSegmented
			default:
				return nil, fmt.Errorf("%v:%v: Expected 2 or 4 tokens, but found %v", name, lineNo, len(tokens))
			}
		}
		if len(tokens) != ix.Format.numTokens() {
			return nil, fmt.Errorf("%v:%v: Expected %v tokens for %v format, but found %v", name, lineNo, ix.Format.numTokens(), ix.Format, len(tokens))
		}
		entry, err := parseIndexLine(ix.Format, tokens)
		if err != nil {
			return nil, fmt.Errorf("%v:%v: %w", name, lineNo, err)
		}
		ix.Entries = append(ix.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read %v: %w", name, err)
	}
	if len(ix.Entries) == 0 {
		return nil, fmt.Errorf("Index file %v is empty", name)
	}
	return ix, nil
}

func parseIndexLine(format IndexFormat, tokens []string) (IndexEntry, error) {
	frameID, err := strconv.Atoi(tokens[1])
	if err != nil {
		return IndexEntry{}, fmt.Errorf("Invalid frame id '%v'", tokens[1])
	}
	if format == IndexFormatPaired {
		return IndexEntry{
			Kind:    EntryPaired,
			ImageID: tokens[0],
			FrameID: frameID,
		}, nil
	}
	segID, err := strconv.Atoi(tokens[2])
	if err != nil {
		return IndexEntry{}, fmt.Errorf("Invalid segment id '%v'", tokens[2])
	}
	segLen, err := strconv.Atoi(tokens[3])
	if err != nil || segLen < 0 {
		return IndexEntry{}, fmt.Errorf("Invalid segment length '%v'", tokens[3])
	}
	seg := Segment{
		Prefix: tokens[0],
		ID:     segID,
		Length: segLen,
	}
	return IndexEntry{
		Kind:    EntrySegmented,
		ImageID: seg.ImageID(0),
		FrameID: frameID,
		Segment: seg,
	}, nil
}

func (ix *Index) Len() int {
	return len(ix.Entries)
}

func (ix *Index) FrameIDs() []int {
	ids := make([]int, len(ix.Entries))
	for i, e := range ix.Entries {
		ids[i] = e.FrameID
	}
	return ids
}

// EvalLines lists every frame that the evaluator must look at.
// A segmented entry expands into one line per frame of its segment.
func (ix *Index) EvalLines() []EvalLine {
	lines := []EvalLine{}
	for _, e := range ix.Entries {
		if e.Kind == EntryPaired {
			lines = append(lines, EvalLine{ImageID: e.ImageID, FrameID: e.FrameID})
			continue
		}
		for j := 0; j < e.Segment.Length; j++ {
			lines = append(lines, EvalLine{ImageID: e.Segment.ImageID(j), FrameID: e.FrameID + j})
		}
	}
	return lines
}

// WriteEvalLines writes lines in the paired index format
func WriteEvalLines(w io.Writer, lines []EvalLine) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		fmt.Fprintf(bw, "%s %d\n", l.ImageID, l.FrameID)
	}
	return bw.Flush()
}
