package audio

import "errors"

// ErrSegmentation indicates the segment set itself could not be produced.
var ErrSegmentation = errors.New("audio segmentation failed")

// ErrExtraction indicates a single segment could not be extracted.
var ErrExtraction = errors.New("segment extraction failed")
