package lipsync

import "errors"

// ErrAnalysis indicates rhubarb failed on a segment or its output was unusable.
var ErrAnalysis = errors.New("lip sync analysis failed")
