package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	wav "github.com/youpy/go-wav"

	"github.com/demobites/voice-order/internal/audio"
)

// WhisperClient transcribes narrowband mu-law utterances by converting them
// to 16kHz WAV and uploading to a Whisper-style transcription endpoint.
type WhisperClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

func NewWhisperClient(apiKey, model string) *WhisperClient {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    "https://api.openai.com",
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe converts the mu-law buffer and returns the trimmed transcript.
// The temporary WAV artifact is removed on every path out.
func (c *WhisperClient) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("transcription api key missing")
	}
	if len(mulaw) == 0 {
		return "", fmt.Errorf("empty audio buffer")
	}

	dir, err := os.MkdirTemp("", "call-audio-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, uuid.NewString()+".wav")
	if err := writeWAV16k(wavPath, mulaw); err != nil {
		return "", err
	}

	text, err := c.upload(ctx, wavPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// writeWAV16k decodes mu-law to LPCM, upsamples to 16kHz and writes a mono
// 16-bit WAV file.
func writeWAV16k(path string, mulaw []byte) error {
	pcm := audio.Upsample8kTo16k(audio.DecodeUlaw(mulaw))
	numSamples := uint32(len(pcm) / 2)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	w := wav.NewWriter(f, numSamples, 1, audio.WidebandRate, 16)
	samples := make([]wav.Sample, numSamples)
	for i := range samples {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		samples[i].Values[0] = int(v)
	}
	if err := w.WriteSamples(samples); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return nil
}

func (c *WhisperClient) upload(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", c.Model); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := c.BaseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return tr.Text, nil
}
