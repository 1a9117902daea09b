package call

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/demobites/voice-order/internal/dialog"
)

type fakeTransport struct {
	mu     sync.Mutex
	media  int
	marks  int
	clears int
	closed bool
}

func (f *fakeTransport) SendMedia(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media++
	return nil
}

func (f *fakeTransport) SendMark(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks++
	return nil
}

func (f *fakeTransport) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) snapshot() (media, marks, clears int, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media, f.marks, f.clears, f.closed
}

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	calls   int
	release chan struct{} // when set, Transcribe blocks until closed
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	text := f.text
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct {
	mu     sync.Mutex
	reply  string
	hangup bool
	heard  []string
}

func (f *fakeResponder) Respond(ctx context.Context, st *dialog.State, userText string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heard = append(f.heard, userText)
	return f.reply, f.hangup
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heard)
}

// blockingStream hands out one PCM chunk, then blocks until released.
type blockingStream struct {
	first   []byte
	release chan struct{}
	mu      sync.Mutex
	served  bool
}

func (s *blockingStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if !s.served {
		s.served = true
		n := copy(p, s.first)
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	<-s.release
	return 0, io.EOF
}

func (s *blockingStream) Close() error { return nil }

type fakeSynth struct {
	pcm     []byte
	release chan struct{}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if f.release != nil {
		return &blockingStream{first: f.pcm, release: f.release}, nil
	}
	return io.NopCloser(bytes.NewReader(f.pcm)), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.MinUtteranceBytes = 160
	cfg.SpokenTextTTL = 5 * time.Millisecond
	return cfg
}

var (
	activeFrame = bytes.Repeat([]byte{0x00}, 160)
	quietFrame  = bytes.Repeat([]byte{0xFF}, 160)
)

// feedUtterance pushes enough active then quiet frames to close one
// utterance, advancing the fake clock one frame period per push.
func feedUtterance(c *Controller, clk *fakeClock, streamSID string, activeFrames int) {
	for i := 0; i < activeFrames; i++ {
		clk.advance(20 * time.Millisecond)
		c.HandleMedia(streamSID, activeFrame)
	}
	for i := 0; i < 6; i++ {
		clk.advance(20 * time.Millisecond)
		c.HandleMedia(streamSID, quietFrame)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func (s *Session) isSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *Session) isPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingReply
}

func TestBargeInStopsPlaybackExactlyOnce(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	tr := &fakeTransport{}
	clk := &fakeClock{t: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	synth := &fakeSynth{pcm: bytes.Repeat([]byte{0x10, 0x00}, 800), release: release}
	c := NewController(newTestConfig(), &fakeTranscriber{}, &fakeResponder{}, synth)
	c.now = clk.now

	sess := c.StartCall("MS1", "CA1", tr, "welcome to demo bites")
	waitFor(t, sess.isSpeaking, "greeting playback never started")

	// quiet frames during playback must not interrupt
	c.HandleMedia("MS1", quietFrame)
	if _, _, clears, _ := tr.snapshot(); clears != 0 {
		t.Fatalf("quiet frame caused %d clears", clears)
	}

	clk.advance(20 * time.Millisecond)
	c.HandleMedia("MS1", activeFrame)
	waitFor(t, func() bool { return !sess.isSpeaking() }, "barge-in did not stop playback")
	if _, _, clears, _ := tr.snapshot(); clears != 1 {
		t.Fatalf("clears = %d, want exactly 1", clears)
	}

	// speaking again inside the cooldown window: loud frames are ignored
	c.speak(sess, "anything else for you", false)
	waitFor(t, sess.isSpeaking, "second playback never started")
	clk.advance(50 * time.Millisecond)
	c.HandleMedia("MS1", activeFrame)
	if _, _, clears, _ := tr.snapshot(); clears != 1 {
		t.Fatal("barge-in fired inside the cooldown window")
	}

	// past the cooldown it works again
	clk.advance(300 * time.Millisecond)
	c.HandleMedia("MS1", activeFrame)
	waitFor(t, func() bool { return !sess.isSpeaking() }, "second barge-in did not stop playback")
	if _, _, clears, _ := tr.snapshot(); clears != 2 {
		t.Fatalf("clears after second barge-in = %d, want 2", clears)
	}
}

func TestDuplicateTranscriptAnsweredOnce(t *testing.T) {
	tr := &fakeTransport{}
	clk := &fakeClock{t: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	transcriber := &fakeTranscriber{text: "one cheese burger please"}
	responder := &fakeResponder{reply: "Cheese burger added."}
	synth := &fakeSynth{pcm: bytes.Repeat([]byte{0x10, 0x00}, 160)}
	c := NewController(newTestConfig(), transcriber, responder, synth)
	c.now = clk.now

	sess := c.StartCall("MS2", "CA2", tr, "")

	feedUtterance(c, clk, "MS2", 20)
	waitFor(t, func() bool { return responder.callCount() == 1 }, "first utterance was not answered")
	waitFor(t, func() bool { return !sess.isSpeaking() && !sess.isPending() }, "first reply never finished")

	feedUtterance(c, clk, "MS2", 20)
	waitFor(t, func() bool { return !sess.isPending() }, "pipeline stuck on duplicate")
	if got := responder.callCount(); got != 1 {
		t.Fatalf("responder called %d times for identical transcript, want 1", got)
	}
	if got := transcriber.callCount(); got != 2 {
		t.Fatalf("transcriber calls = %d, want 2", got)
	}
}

func TestSecondUtteranceDroppedWhileReplyInFlight(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{}
	clk := &fakeClock{t: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	transcriber := &fakeTranscriber{text: "two cokes", release: release}
	responder := &fakeResponder{reply: "Two Coke added."}
	synth := &fakeSynth{pcm: bytes.Repeat([]byte{0x10, 0x00}, 160)}
	c := NewController(newTestConfig(), transcriber, responder, synth)
	c.now = clk.now

	sess := c.StartCall("MS3", "CA3", tr, "")

	feedUtterance(c, clk, "MS3", 20)
	waitFor(t, func() bool { return transcriber.callCount() == 1 }, "pipeline never started")

	// a second utterance closing while the first is still transcribing
	feedUtterance(c, clk, "MS3", 20)
	close(release)
	waitFor(t, func() bool { return !sess.isSpeaking() && !sess.isPending() }, "reply never finished")

	if got := transcriber.callCount(); got != 1 {
		t.Fatalf("transcriber calls = %d, want 1 (second utterance dropped)", got)
	}
	if got := responder.callCount(); got != 1 {
		t.Fatalf("responder calls = %d, want 1", got)
	}
}

func TestShortOrSilentUtterancesSkipped(t *testing.T) {
	tr := &fakeTransport{}
	clk := &fakeClock{t: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	transcriber := &fakeTranscriber{text: "hm"}
	responder := &fakeResponder{reply: "should not be spoken"}
	c := NewController(newTestConfig(), transcriber, responder, &fakeSynth{})
	c.now = clk.now

	sess := c.StartCall("MS4", "CA4", tr, "")

	// transcript under three characters is discarded without a reply
	feedUtterance(c, clk, "MS4", 20)
	waitFor(t, func() bool { return transcriber.callCount() == 1 }, "pipeline never ran")
	waitFor(t, func() bool { return !sess.isPending() }, "pending flag not released")
	if responder.callCount() != 0 {
		t.Fatalf("responder called for a too-short transcript")
	}
	if sess.isSpeaking() {
		t.Fatal("assistant started speaking for a skipped utterance")
	}
}

func TestEndCallMidPlaybackIgnoresLateMedia(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	tr := &fakeTransport{}
	clk := &fakeClock{t: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	synth := &fakeSynth{pcm: bytes.Repeat([]byte{0x10, 0x00}, 800), release: release}
	transcriber := &fakeTranscriber{text: "hello"}
	c := NewController(newTestConfig(), transcriber, &fakeResponder{}, synth)
	c.now = clk.now

	sess := c.StartCall("MS5", "CA5", tr, "welcome")
	waitFor(t, sess.isSpeaking, "greeting playback never started")

	c.EndCall("MS5")
	if c.Registry().Len() != 0 {
		t.Fatal("session still registered after EndCall")
	}
	if _, _, clears, _ := tr.snapshot(); clears != 1 {
		t.Fatalf("in-flight playback not canceled, clears = %d", clears)
	}

	// frames for a torn-down stream are dropped
	for i := 0; i < 30; i++ {
		clk.advance(20 * time.Millisecond)
		c.HandleMedia("MS5", activeFrame)
	}
	time.Sleep(20 * time.Millisecond)
	if transcriber.callCount() != 0 {
		t.Fatal("late media reached the pipeline after EndCall")
	}
	c.EndCall("MS5") // idempotent
}

func TestHangupClosesTransportAfterGoodbye(t *testing.T) {
	tr := &fakeTransport{}
	clk := &fakeClock{t: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	transcriber := &fakeTranscriber{text: "yes place the order"}
	responder := &fakeResponder{reply: "Thanks, your order is placed. Goodbye!", hangup: true}
	synth := &fakeSynth{pcm: bytes.Repeat([]byte{0x10, 0x00}, 160)}
	c := NewController(newTestConfig(), transcriber, responder, synth)
	c.now = clk.now

	c.StartCall("MS6", "CA6", tr, "")
	feedUtterance(c, clk, "MS6", 20)

	waitFor(t, func() bool {
		_, marks, _, closed := tr.snapshot()
		return marks == 1 && closed
	}, "transport not closed after goodbye playback")
	if c.Registry().Len() != 0 {
		t.Fatal("session still registered after hangup")
	}
	if _, _, clears, _ := tr.snapshot(); clears != 0 {
		t.Fatal("completed goodbye should not send a clear")
	}
}
