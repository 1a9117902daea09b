package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives paced outbound audio. The media-stream transport satisfies
// this.
type Sink interface {
	SendMedia(payload []byte) error
	SendMark(name string) error
	SendClear() error
}

type pacerState int

const (
	statePlaying pacerState = iota
	stateDone
	stateCanceled
)

// Pacer drips buffered mu-law audio to the sink in fixed-size frames on a
// real-time ticker, sending at most catchUp frames per tick so a slow tick
// can recover without flooding the transport. When the input is closed and
// the buffer drains, it emits a completion mark exactly once. Cancel is
// idempotent and a no-op after completion.
type Pacer struct {
	sink       Sink
	frameBytes int
	catchUp    int
	markName   string
	onDone     func(completed bool)

	mu          sync.Mutex
	buf         []byte
	inputClosed bool
	state       pacerState

	stopCh chan struct{}
}

func NewPacer(sink Sink, frameBytes int, frameDur time.Duration, catchUp int, onDone func(completed bool)) *Pacer {
	if frameBytes <= 0 {
		frameBytes = 160
	}
	if frameDur <= 0 {
		frameDur = 20 * time.Millisecond
	}
	if catchUp < 1 {
		catchUp = 1
	}
	p := &Pacer{
		sink:       sink,
		frameBytes: frameBytes,
		catchUp:    catchUp,
		markName:   "tts-done-" + uuid.NewString(),
		onDone:     onDone,
		stopCh:     make(chan struct{}),
	}
	go p.loop(frameDur)
	return p
}

// MarkName is the name the completion mark will carry.
func (p *Pacer) MarkName() string {
	return p.markName
}

// Write appends synthesized mu-law bytes. Writes after CloseInput or Cancel
// are dropped.
func (p *Pacer) Write(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inputClosed || p.state != statePlaying {
		return
	}
	p.buf = append(p.buf, b...)
}

// CloseInput signals that no more audio is coming; the pacer finishes once
// the buffer drains.
func (p *Pacer) CloseInput() {
	p.mu.Lock()
	p.inputClosed = true
	p.mu.Unlock()
}

// Cancel stops playback immediately: buffered audio is dropped and a clear
// is sent so the far end stops playing too. Safe to call multiple times and
// after completion.
func (p *Pacer) Cancel() {
	p.mu.Lock()
	if p.state != statePlaying {
		p.mu.Unlock()
		return
	}
	p.state = stateCanceled
	p.buf = nil
	p.mu.Unlock()

	close(p.stopCh)
	_ = p.sink.SendClear()
	if p.onDone != nil {
		p.onDone(false)
	}
}

func (p *Pacer) finish() {
	p.mu.Lock()
	if p.state != statePlaying {
		p.mu.Unlock()
		return
	}
	p.state = stateDone
	p.mu.Unlock()

	_ = p.sink.SendMark(p.markName)
	if p.onDone != nil {
		p.onDone(true)
	}
}

// nextFrame pops one full frame, padding the final partial frame with
// mu-law silence once the input is closed. done means drained after close.
func (p *Pacer) nextFrame() (frame []byte, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != statePlaying {
		return nil, true
	}
	if len(p.buf) >= p.frameBytes {
		frame = p.buf[:p.frameBytes:p.frameBytes]
		p.buf = p.buf[p.frameBytes:]
		return frame, false
	}
	if !p.inputClosed {
		return nil, false
	}
	if len(p.buf) > 0 {
		frame = make([]byte, p.frameBytes)
		for i := range frame {
			frame[i] = 0xFF
		}
		copy(frame, p.buf)
		p.buf = nil
		return frame, false
	}
	return nil, true
}

func (p *Pacer) loop(frameDur time.Duration) {
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for sent := 0; sent < p.catchUp; sent++ {
				frame, done := p.nextFrame()
				if frame != nil {
					_ = p.sink.SendMedia(frame)
					continue
				}
				if done {
					p.finish()
					return
				}
				break
			}
		}
	}
}
