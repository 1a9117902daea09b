package vad

import (
	"time"
)

// Config tunes the hysteresis of the utterance segmenter. Defaults match
// 20ms telephony frames.
type Config struct {
	FrameDuration time.Duration
	StartFrames   int // consecutive active frames to open an utterance
	EndFrames     int // consecutive quiet frames to close one
	MinUtterance  time.Duration
	MaxUtterance  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FrameDuration: 20 * time.Millisecond,
		StartFrames:   3,
		EndFrames:     6,
		MinUtterance:  300 * time.Millisecond,
		MaxUtterance:  6000 * time.Millisecond,
	}
}

// Utterance is a closed speech segment: the raw mu-law frames in arrival
// order plus the backdated start time.
type Utterance struct {
	Frames   [][]byte
	Start    time.Time
	Duration time.Duration
}

// Bytes concatenates the buffered frames.
func (u Utterance) Bytes() []byte {
	n := 0
	for _, f := range u.Frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f...)
	}
	return out
}

// Segmenter turns a per-frame active/quiet signal into utterance boundaries.
// Not safe for concurrent use; callers hold their own session lock.
type Segmenter struct {
	cfg Config

	inUtterance  bool
	voicedStreak int
	quietStreak  int
	start        time.Time
	pending      [][]byte
}

func NewSegmenter(cfg Config) *Segmenter {
	if cfg.FrameDuration <= 0 {
		cfg = DefaultConfig()
	}
	return &Segmenter{cfg: cfg}
}

// Push feeds one frame and reports whether it closed an utterance. Frames
// from the first active frame of a confirmed utterance onward are retained,
// so the start threshold does not drop leading audio; the start timestamp is
// backdated to cover the confirmation window.
func (s *Segmenter) Push(frame []byte, active bool, now time.Time) (Utterance, bool) {
	if active {
		s.voicedStreak++
		s.quietStreak = 0
		s.pending = append(s.pending, frame)
		if !s.inUtterance {
			if s.voicedStreak >= s.cfg.StartFrames {
				s.inUtterance = true
				s.start = now.Add(-time.Duration(s.cfg.StartFrames-1) * s.cfg.FrameDuration)
			}
			return Utterance{}, false
		}
	} else {
		s.voicedStreak = 0
		if !s.inUtterance {
			s.quietStreak = 0
			s.pending = nil
			return Utterance{}, false
		}
		s.quietStreak++
		s.pending = append(s.pending, frame)
	}

	dur := now.Sub(s.start) + s.cfg.FrameDuration
	if s.quietStreak >= s.cfg.EndFrames || dur >= s.cfg.MaxUtterance {
		return s.close(dur)
	}
	return Utterance{}, false
}

func (s *Segmenter) close(dur time.Duration) (Utterance, bool) {
	utt := Utterance{Frames: s.pending, Start: s.start, Duration: dur}
	s.Reset()
	if dur < s.cfg.MinUtterance {
		return Utterance{}, false
	}
	return utt, true
}

// Reset drops any open utterance and clears all streaks. Called when the
// agent starts speaking so its own audio echo cannot seed an utterance.
func (s *Segmenter) Reset() {
	s.inUtterance = false
	s.voicedStreak = 0
	s.quietStreak = 0
	s.pending = nil
	s.start = time.Time{}
}
