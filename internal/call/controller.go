package call

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/demobites/voice-order/internal/audio"
	"github.com/demobites/voice-order/internal/dialog"
	"github.com/demobites/voice-order/internal/playback"
	"github.com/demobites/voice-order/internal/tts"
	"github.com/demobites/voice-order/internal/vad"
)

// Transcriber turns a buffered mu-law utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, mulaw []byte) (string, error)
}

// Responder produces the assistant reply for a caller turn. hangup means
// the call should end after the reply finishes playing.
type Responder interface {
	Respond(ctx context.Context, st *dialog.State, userText string) (reply string, hangup bool)
}

// Synthesizer produces a narrowband PCM stream for the reply text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Controller drives live calls: it segments inbound audio into utterances,
// runs the transcribe-resolve-speak pipeline one turn at a time, and cuts
// playback short when the caller barges in.
type Controller struct {
	cfg      Config
	registry *Registry

	transcriber Transcriber
	responder   Responder
	synth       Synthesizer

	now func() time.Time
}

func NewController(cfg Config, transcriber Transcriber, responder Responder, synth Synthesizer) *Controller {
	if cfg.FrameBytes <= 0 {
		cfg = DefaultConfig()
	}
	return &Controller{
		cfg:         cfg,
		registry:    NewRegistry(),
		transcriber: transcriber,
		responder:   responder,
		synth:       synth,
		now:         time.Now,
	}
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

// StartCall registers a session for the stream and greets the caller.
func (c *Controller) StartCall(streamSID, callSID string, t Transport, greeting string) *Session {
	sess := newSession(streamSID, callSID, t, c.cfg.VAD)
	c.registry.add(sess)
	log.Printf("[%s] call started (call sid %s)", streamSID, callSID)
	if greeting != "" {
		c.speak(sess, greeting, false)
	}
	return sess
}

// EndCall tears the session down and stops any in-flight playback.
func (c *Controller) EndCall(streamSID string) {
	if _, ok := c.registry.Get(streamSID); !ok {
		return
	}
	c.registry.Remove(streamSID)
	log.Printf("[%s] call ended", streamSID)
}

// HandleMark is informational; turn completion is tracked by the pacer.
func (c *Controller) HandleMark(streamSID, name string) {
	log.Printf("[%s] playback mark %s acknowledged", streamSID, name)
}

// HandleMedia consumes one inbound 20ms mu-law frame. While the assistant
// is speaking, frames only matter for barge-in; otherwise they feed the
// segmenter, and a closed utterance launches the reply pipeline unless one
// is already in flight.
func (c *Controller) HandleMedia(streamSID string, frame []byte) {
	sess, ok := c.registry.Get(streamSID)
	if !ok {
		return
	}
	now := c.now()
	active := audio.ActivityRatio(frame) >= c.cfg.ActivityThreshold

	sess.mu.Lock()
	if sess.speaking {
		if active && now.After(sess.cooldownUntil) {
			cancel := sess.cancelSpeak
			sess.cancelSpeak = nil
			sess.cooldownUntil = now.Add(c.cfg.BargeCooldown)
			sess.mu.Unlock()
			log.Printf("[%s] barge-in, stopping playback", streamSID)
			if cancel != nil {
				cancel()
			}
			return
		}
		sess.mu.Unlock()
		return
	}
	utt, closed := sess.seg.Push(frame, active, now)
	launch := false
	if closed {
		if sess.pendingReply {
			log.Printf("[%s] utterance dropped, reply already in flight", streamSID)
		} else {
			sess.pendingReply = true
			launch = true
		}
	}
	sess.mu.Unlock()

	if launch {
		go c.runPipeline(sess, utt)
	}
}

func (c *Controller) runPipeline(sess *Session, utt vad.Utterance) {
	buf := utt.Bytes()
	if len(buf) < c.cfg.MinUtteranceBytes ||
		audio.ActivityRatio(buf) < 0.05 ||
		audio.IsLikelySilence(buf) {
		c.clearPending(sess)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TranscribeTimeout)
	defer cancel()
	text, err := c.transcriber.Transcribe(ctx, buf)
	if err != nil {
		log.Printf("[%s] transcription failed: %v", sess.StreamSID, err)
		c.clearPending(sess)
		return
	}
	text = strings.TrimSpace(text)
	if len(text) < 3 {
		c.clearPending(sess)
		return
	}

	sess.mu.Lock()
	if text == sess.lastTranscript {
		sess.pendingReply = false
		sess.mu.Unlock()
		log.Printf("[%s] duplicate transcript ignored", sess.StreamSID)
		return
	}
	sess.lastTranscript = text
	st := sess.dialog
	sess.mu.Unlock()

	log.Printf("[%s] caller: %q", sess.StreamSID, text)
	reply, hangup := c.responder.Respond(context.Background(), st, text)
	if reply == "" {
		c.clearPending(sess)
		return
	}

	sess.mu.Lock()
	if reply == sess.lastSpokenText {
		sess.pendingReply = false
		sess.mu.Unlock()
		log.Printf("[%s] repeated reply suppressed", sess.StreamSID)
		return
	}
	sess.mu.Unlock()

	c.speak(sess, reply, hangup)
}

func (c *Controller) clearPending(sess *Session) {
	sess.mu.Lock()
	sess.pendingReply = false
	sess.mu.Unlock()
}

// speak synthesizes the reply and streams it through a pacer. The session
// goes deaf (except for barge-in) until the pacer reports done. For a
// hangup reply the transport is closed only after playback completes.
func (c *Controller) speak(sess *Session, text string, hangup bool) {
	ctx, cancelCtx := context.WithCancel(context.Background())

	onDone := func(completed bool) {
		cancelCtx()
		sess.mu.Lock()
		sess.speaking = false
		sess.pendingReply = false
		sess.cancelSpeak = nil
		sess.mu.Unlock()
		if completed {
			c.scheduleSpokenClear(sess, text)
			if hangup {
				log.Printf("[%s] goodbye finished, closing stream", sess.StreamSID)
				c.EndCall(sess.StreamSID)
				_ = sess.transport.Close()
			}
		}
	}

	pacer := playback.NewPacer(sess.transport, c.cfg.FrameBytes, c.cfg.FrameDuration, c.cfg.CatchUpFrames, onDone)
	cancel := func() {
		cancelCtx()
		pacer.Cancel()
	}

	sess.mu.Lock()
	sess.speaking = true
	sess.lastSpokenText = text
	sess.cancelSpeak = cancel
	sess.seg.Reset()
	sess.mu.Unlock()

	log.Printf("[%s] assistant: %q", sess.StreamSID, text)
	go func() {
		stream, err := c.synth.Synthesize(ctx, text)
		if err != nil {
			log.Printf("[%s] synthesis failed: %v", sess.StreamSID, err)
			cancel()
			return
		}
		if err := tts.EncodeStream(ctx, stream, pacer.Write); err != nil {
			if ctx.Err() == nil {
				log.Printf("[%s] speech stream aborted: %v", sess.StreamSID, err)
			}
			cancel()
			return
		}
		pacer.CloseInput()
	}()
}

// scheduleSpokenClear lifts the repeated-reply guard shortly after playback
// so the assistant can legitimately say the same thing again later.
func (c *Controller) scheduleSpokenClear(sess *Session, text string) {
	time.AfterFunc(c.cfg.SpokenTextTTL, func() {
		sess.mu.Lock()
		if sess.lastSpokenText == text {
			sess.lastSpokenText = ""
		}
		sess.mu.Unlock()
	})
}
