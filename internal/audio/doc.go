// Package audio splits normalized audio into fixed-length segments.
//
// Segmentation is two steps: Plan computes the windows from the probed
// duration, and Segmenter extracts each window to its own PCM file through an
// injected extractor (ffmpeg in production). Windows are contiguous and never
// overlap, so cues from different segments can be rebased by adding the
// segment start and merged without deduplication.
package audio
