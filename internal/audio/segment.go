package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/alnah/go-lipsync/internal/format"
)

// Default segmentation parameters.
const (
	// DefaultWindow is the nominal segment length.
	// Rhubarb's phonetic recognizer slows down sharply on long inputs.
	DefaultWindow = 30 * time.Second

	// DefaultMinSegment is the shortest segment worth analyzing.
	// A trailing segment below this holds no speech and is skipped.
	DefaultMinSegment = 50 * time.Millisecond
)

// Segment is one fixed window of the normalized audio.
// The caller is responsible for releasing Path after use.
type Segment struct {
	Index    int           // Zero-based position in the source.
	Start    time.Duration // Offset of the window in the source audio.
	Duration time.Duration // Window length, shorter for the last segment.
	Path     string        // Extracted PCM file; empty when Skipped.

	// Skipped is set when Duration is below the minimum segment length.
	// Skipped segments are never extracted nor analyzed.
	Skipped bool

	// Err records a failed extraction of this segment only.
	Err error
}

// End returns the end offset of the segment in the source audio.
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// String returns a human-readable representation for logging.
func (s Segment) String() string {
	return fmt.Sprintf("segment %d: %s-%s",
		s.Index,
		format.Timestamp(s.Start),
		format.Timestamp(s.End()))
}

// Plan computes floor(total/window)+1 contiguous, non-overlapping windows
// covering [0, total). The last window holds the remainder and has zero
// duration when total is an exact multiple of window.
func Plan(total, window time.Duration) ([]Segment, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %v", ErrSegmentation, window)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: negative duration %v", ErrSegmentation, total)
	}

	n := int(total/window) + 1
	segments := make([]Segment, n)
	for i := range segments {
		start := time.Duration(i) * window
		segments[i] = Segment{
			Index:    i,
			Start:    start,
			Duration: max(min(window, total-start), 0),
		}
	}
	return segments, nil
}

// extractor writes one time window of an audio file to another file.
type extractor interface {
	Extract(ctx context.Context, inputPath, outputPath string, start, length time.Duration) error
}

// PathAllocator hands out tracked scratch paths by role.
type PathAllocator interface {
	Path(role string) (string, error)
}

// Segmenter splits normalized audio into fixed windows.
type Segmenter struct {
	ex         extractor
	window     time.Duration
	minSegment time.Duration
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithWindow sets the nominal segment length.
func WithWindow(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.window = d }
}

// WithMinSegment sets the shortest segment that is extracted and analyzed.
func WithMinSegment(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.minSegment = d }
}

// NewSegmenter creates a Segmenter that extracts windows with ex.
func NewSegmenter(ex extractor, opts ...SegmenterOption) (*Segmenter, error) {
	if ex == nil {
		return nil, fmt.Errorf("%w: extractor cannot be nil", ErrSegmentation)
	}
	s := &Segmenter{
		ex:         ex,
		window:     DefaultWindow,
		minSegment: DefaultMinSegment,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %v", ErrSegmentation, s.window)
	}
	if s.minSegment < 0 {
		s.minSegment = 0
	}
	return s, nil
}

// Window returns the nominal segment length.
func (s *Segmenter) Window() time.Duration {
	return s.window
}

// Segment plans the windows of wavPath and extracts each one into a path
// allocated from alloc. A failed extraction is recorded on its segment and
// does not stop the others. The returned error wraps ErrSegmentation and is
// reserved for failures producing the segment set itself.
func (s *Segmenter) Segment(ctx context.Context, alloc PathAllocator, wavPath string, total time.Duration) ([]Segment, error) {
	segments, err := Plan(total, s.window)
	if err != nil {
		return nil, err
	}

	for i := range segments {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSegmentation, err)
		}

		seg := &segments[i]
		if seg.Duration < s.minSegment || seg.Duration == 0 {
			seg.Skipped = true
			continue
		}

		p, err := alloc.Path(fmt.Sprintf("segment-%03d.wav", seg.Index))
		if err != nil {
			return nil, fmt.Errorf("%w: allocate %s: %w", ErrSegmentation, seg, err)
		}
		seg.Path = p

		// The full window is requested; ffmpeg clamps it at end of stream.
		if err := s.ex.Extract(ctx, wavPath, p, seg.Start, s.window); err != nil {
			seg.Err = fmt.Errorf("%w: %s: %w", ErrExtraction, seg, err)
		}
	}

	return segments, nil
}
