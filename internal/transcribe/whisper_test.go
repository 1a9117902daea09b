package transcribe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testAudio() []byte {
	return bytes.Repeat([]byte{0x21, 0x9C, 0x40, 0xFF}, 800)
}

func countTempDirs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "call-audio-") {
			n++
		}
	}
	return n
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part missing: %v", err)
		}
		defer f.Close()
		if !strings.HasSuffix(hdr.Filename, ".wav") {
			t.Errorf("filename = %q, want .wav", hdr.Filename)
		}
		head := make([]byte, 4)
		f.Read(head)
		if string(head) != "RIFF" {
			t.Errorf("upload is not a RIFF WAV, header = %q", head)
		}
		w.Write([]byte(`{"text":"  one cheese burger please  "}`))
	}))
	defer srv.Close()

	before := countTempDirs(t)
	c := NewWhisperClient("key", "")
	c.BaseURL = srv.URL
	got, err := c.Transcribe(context.Background(), testAudio())
	if err != nil {
		t.Fatal(err)
	}
	if got != "one cheese burger please" {
		t.Fatalf("transcript = %q", got)
	}
	if after := countTempDirs(t); after != before {
		t.Fatalf("temp dirs leaked: %d -> %d", before, after)
	}
}

func TestTranscribeServerErrorCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	before := countTempDirs(t)
	c := NewWhisperClient("key", "")
	c.BaseURL = srv.URL
	if _, err := c.Transcribe(context.Background(), testAudio()); err == nil {
		t.Fatal("want error from 400 response")
	}
	if after := countTempDirs(t); after != before {
		t.Fatalf("temp dirs leaked on error path: %d -> %d", before, after)
	}
}

func TestTranscribeCanceledContextCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := countTempDirs(t)
	c := NewWhisperClient("key", "")
	c.BaseURL = srv.URL
	if _, err := c.Transcribe(ctx, testAudio()); err == nil {
		t.Fatal("want error from canceled context")
	}
	if after := countTempDirs(t); after != before {
		t.Fatalf("temp dirs leaked on cancel path: %d -> %d", before, after)
	}
}

func TestTranscribeRejectsEmptyBuffer(t *testing.T) {
	c := NewWhisperClient("key", "")
	if _, err := c.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("want error for empty buffer")
	}
}

func TestTranscribeRequiresKey(t *testing.T) {
	c := NewWhisperClient("", "")
	if _, err := c.Transcribe(context.Background(), testAudio()); err == nil {
		t.Fatal("want error when api key missing")
	}
}
