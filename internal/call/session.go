package call

import (
	"sync"
	"time"

	"github.com/demobites/voice-order/internal/dialog"
	"github.com/demobites/voice-order/internal/vad"
)

// Transport is the outbound side of a media stream connection.
type Transport interface {
	SendMedia(payload []byte) error
	SendMark(name string) error
	SendClear() error
	Close() error
}

// Config tunes the per-call turn machinery.
type Config struct {
	FrameBytes        int
	FrameDuration     time.Duration
	ActivityThreshold float64
	BargeCooldown     time.Duration
	CatchUpFrames     int
	MinUtteranceBytes int
	SpokenTextTTL     time.Duration
	TranscribeTimeout time.Duration
	VAD               vad.Config
}

func DefaultConfig() Config {
	return Config{
		FrameBytes:        160,
		FrameDuration:     20 * time.Millisecond,
		ActivityThreshold: 0.10,
		BargeCooldown:     250 * time.Millisecond,
		CatchUpFrames:     2,
		MinUtteranceBytes: 2400, // 300ms of 8kHz mu-law
		SpokenTextTTL:     900 * time.Millisecond,
		TranscribeTimeout: 15 * time.Second,
		VAD:               vad.DefaultConfig(),
	}
}

// Session is the per-call state. All mutable fields are guarded by mu; the
// event goroutine, the reply pipeline and the pacer callback all touch it.
type Session struct {
	StreamSID string
	CallSID   string

	transport Transport
	dialog    *dialog.State

	mu             sync.Mutex
	seg            *vad.Segmenter
	speaking       bool
	pendingReply   bool
	lastTranscript string
	lastSpokenText string
	cancelSpeak    func()
	cooldownUntil  time.Time
}

func newSession(streamSID, callSID string, t Transport, vadCfg vad.Config) *Session {
	return &Session{
		StreamSID: streamSID,
		CallSID:   callSID,
		transport: t,
		dialog:    dialog.NewState(),
		seg:       vad.NewSegmenter(vadCfg),
	}
}

// cancelPlayback stops any in-flight speech; safe when nothing is playing.
func (s *Session) cancelPlayback() {
	s.mu.Lock()
	cancel := s.cancelSpeak
	s.cancelSpeak = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Registry tracks live sessions by stream SID. Messages for unknown SIDs
// are dropped by callers when Get misses.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.StreamSID] = s
	r.mu.Unlock()
}

func (r *Registry) Get(streamSID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[streamSID]
	return s, ok
}

// Remove drops the session and cancels any in-flight playback so no
// goroutine keeps writing to a dead transport.
func (r *Registry) Remove(streamSID string) {
	r.mu.Lock()
	s, ok := r.sessions[streamSID]
	delete(r.sessions, streamSID)
	r.mu.Unlock()
	if ok {
		s.cancelPlayback()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
