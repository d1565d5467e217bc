// Package transcript provides segmentation of finalized call transcripts.
//
// It splits a transcript into overlapping time windows so that downstream
// sentiment scoring sees enough context per window while still tracking how
// the conversation moved over time.
package transcript

import (
	"log/slog"
	"sort"

	"github.com/outreachlab/leadpulse/internal/models"
)

// Default segmentation configuration constants
const (
	// DefaultSegmentDurationSeconds is the default width of each window.
	DefaultSegmentDurationSeconds = 30.0
	// DefaultOverlapSeconds is the default overlap between consecutive windows.
	DefaultOverlapSeconds = 5.0
	// DefaultMinSegmentSeconds is the minimum window width kept unless the
	// window holds messages no other window covers.
	DefaultMinSegmentSeconds = 10.0
)

// Opts holds configuration options for the segmenter.
type Opts struct {
	SegmentDurationSeconds float64
	OverlapSeconds         float64
	MinSegmentSeconds      float64
}

// Option defines a configuration option for the segmenter.
type Option func(*Opts)

// WithSegmentDuration overrides the window width in seconds.
func WithSegmentDuration(seconds float64) Option {
	return func(o *Opts) { o.SegmentDurationSeconds = seconds }
}

// WithOverlap overrides the window overlap in seconds.
func WithOverlap(seconds float64) Option {
	return func(o *Opts) { o.OverlapSeconds = seconds }
}

// WithMinSegmentLength overrides the minimum window width in seconds.
func WithMinSegmentLength(seconds float64) Option {
	return func(o *Opts) { o.MinSegmentSeconds = seconds }
}

// Segmenter splits transcripts into overlapping time windows.
type Segmenter struct {
	cfg Opts
}

// NewSegmenter creates a segmenter with the given options applied over the
// defaults. It returns an error when the overlap is not smaller than the
// window width, which would prevent the sliding window from advancing.
func NewSegmenter(opts ...Option) (*Segmenter, error) {
	cfg := Opts{
		SegmentDurationSeconds: DefaultSegmentDurationSeconds,
		OverlapSeconds:         DefaultOverlapSeconds,
		MinSegmentSeconds:      DefaultMinSegmentSeconds,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SegmentDurationSeconds <= 0 || cfg.OverlapSeconds < 0 {
		return nil, models.ErrOverlapExceedsWindow
	}
	if cfg.OverlapSeconds >= cfg.SegmentDurationSeconds {
		slog.Error("Segmenter overlap not smaller than window", "overlap", cfg.OverlapSeconds, "window", cfg.SegmentDurationSeconds)
		return nil, models.ErrOverlapExceedsWindow
	}
	return &Segmenter{cfg: cfg}, nil
}

// Segment splits the transcript into overlapping windows. A transcript with
// zero duration or no messages yields zero segments. Windows narrower than
// the minimum width are kept only when they hold a message no other window
// covers, so no message is ever dropped.
func (s *Segmenter) Segment(t models.ConversationTranscript) []models.Segment {
	if t.DurationSeconds <= 0 || len(t.Messages) == 0 {
		slog.Debug("Segmenter: empty transcript", "callID", t.CallID, "duration", t.DurationSeconds, "messages", len(t.Messages))
		return nil
	}

	msgs := make([]models.ConversationMessage, len(t.Messages))
	copy(msgs, t.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].TimestampSeconds < msgs[j].TimestampSeconds
	})

	step := s.cfg.SegmentDurationSeconds - s.cfg.OverlapSeconds
	var segments []models.Segment
	for start := 0.0; start < t.DurationSeconds; start += step {
		end := start + s.cfg.SegmentDurationSeconds
		last := end >= t.DurationSeconds
		if last {
			end = t.DurationSeconds
		}
		seg := models.Segment{StartSeconds: start, EndSeconds: end}
		for _, m := range msgs {
			if s.contains(seg, m.TimestampSeconds, last) {
				seg.Messages = append(seg.Messages, m)
			}
		}
		segments = append(segments, seg)
		if last {
			break
		}
	}

	return s.pruneShortWindows(segments)
}

// contains reports whether the timestamp falls in [start, end). The final
// window additionally accepts a message stamped exactly at the transcript
// end, so the closing utterance is never dropped.
func (s *Segmenter) contains(seg models.Segment, ts float64, last bool) bool {
	if ts < seg.StartSeconds {
		return false
	}
	if ts < seg.EndSeconds {
		return true
	}
	return last && ts == seg.EndSeconds
}

// pruneShortWindows drops windows narrower than the minimum width whose
// messages are all covered by some other window.
func (s *Segmenter) pruneShortWindows(segments []models.Segment) []models.Segment {
	kept := make([]models.Segment, 0, len(segments))
	for i, seg := range segments {
		width := seg.EndSeconds - seg.StartSeconds
		if width >= s.cfg.MinSegmentSeconds {
			kept = append(kept, seg)
			continue
		}
		if s.hasUncoveredMessage(segments, i) {
			slog.Debug("Segmenter keeping short window with uncovered messages", "start", seg.StartSeconds, "end", seg.EndSeconds)
			kept = append(kept, seg)
			continue
		}
		slog.Debug("Segmenter dropping short covered window", "start", seg.StartSeconds, "end", seg.EndSeconds)
	}
	return kept
}

// hasUncoveredMessage reports whether segment i holds a message that no other
// segment also holds.
func (s *Segmenter) hasUncoveredMessage(segments []models.Segment, i int) bool {
	for _, m := range segments[i].Messages {
		covered := false
		for j, other := range segments {
			if j == i {
				continue
			}
			if m.TimestampSeconds >= other.StartSeconds && m.TimestampSeconds < other.EndSeconds {
				covered = true
				break
			}
		}
		if !covered {
			return true
		}
	}
	return false
}
