package recording

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeStorage struct {
	mu   sync.Mutex
	keys []string
	data [][]byte
}

func (f *fakeStorage) Upload(key, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeStorage) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func TestUploadRecordingFetchesWavRendition(t *testing.T) {
	var gotPath, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		w.Write([]byte("RIFFxxxxWAVE"))
	}))
	defer srv.Close()

	st := &fakeStorage{}
	s := New(Config{AccountSID: "ACxxx", AuthToken: "tok", Enabled: true}, st)
	if err := s.UploadRecording(context.Background(), srv.URL+"/Recordings/RE1", "recordings/RE1.wav"); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/Recordings/RE1.wav" {
		t.Fatalf("fetched path = %q, want .wav rendition", gotPath)
	}
	if gotUser != "ACxxx" {
		t.Fatalf("basic auth user = %q", gotUser)
	}
	keys := st.uploaded()
	if len(keys) != 1 || keys[0] != "recordings/RE1.wav" {
		t.Fatalf("uploaded keys = %v", keys)
	}
}

func TestUploadRecordingReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(Config{AccountSID: "AC", AuthToken: "t", Enabled: true}, &fakeStorage{})
	err := s.UploadRecording(context.Background(), srv.URL+"/Recordings/RE2", "recordings/RE2.wav")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want status in error", err)
	}
}

func TestHandleStatusIgnoresInProgress(t *testing.T) {
	st := &fakeStorage{}
	s := New(Config{AccountSID: "AC", AuthToken: "t", Enabled: true}, st)
	s.HandleStatus(map[string]string{
		"RecordingStatus": "in-progress",
		"RecordingUrl":    "https://api.example.com/Recordings/RE3",
		"RecordingSid":    "RE3",
	})
	time.Sleep(20 * time.Millisecond)
	if len(st.uploaded()) != 0 {
		t.Fatal("in-progress status must not trigger an upload")
	}
}

func TestDisabledServiceIsNoOp(t *testing.T) {
	s := New(Config{}, &fakeStorage{})
	if s.Enabled() {
		t.Fatal("service without credentials reported enabled")
	}
	if err := s.Start("CA1", "https://example.com/cb"); err != nil {
		t.Fatalf("disabled Start errored: %v", err)
	}
}
