package recording

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Storage receives downloaded recording files.
type Storage interface {
	Upload(key, contentType string, data []byte) error
}

type Config struct {
	AccountSID string
	AuthToken  string
	Enabled    bool
}

// Service starts call recordings over the Twilio REST API and archives the
// finished files. Everything is best-effort: a failed recording never
// affects the call itself.
type Service struct {
	config     Config
	storage    Storage
	client     *twilio.RestClient
	httpClient *http.Client
}

func New(config Config, storage Storage) *Service {
	var client *twilio.RestClient
	if config.AccountSID != "" && config.AuthToken != "" {
		client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: config.AccountSID,
			Password: config.AuthToken,
		})
	}
	return &Service{
		config:     config,
		storage:    storage,
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Service) Enabled() bool {
	return s.config.Enabled && s.client != nil
}

// Start begins dual-channel-free mono recording of an active call. The
// status callback fires when the recording file is ready.
func (s *Service) Start(callSID, callbackURL string) error {
	if !s.Enabled() {
		return nil
	}
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(callbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("mono")

	if _, err := s.client.Api.CreateCallRecording(callSID, params); err != nil {
		return fmt.Errorf("start recording for %s: %w", callSID, err)
	}
	return nil
}

// HandleStatus processes a recording status callback. Completed recordings
// are fetched and archived in the background.
func (s *Service) HandleStatus(params map[string]string) {
	status := params["RecordingStatus"]
	recordingURL := params["RecordingUrl"]
	recordingSID := params["RecordingSid"]
	log.Printf("recording status: %s, sid: %s", status, recordingSID)

	if status != "completed" || recordingURL == "" {
		return
	}
	filename := fmt.Sprintf("recordings/%s_%d.wav", recordingSID, time.Now().Unix())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.UploadRecording(ctx, recordingURL, filename); err != nil {
			log.Printf("recording upload failed: %v", err)
			return
		}
		log.Printf("recording uploaded: %s", filename)
	}()
}

// UploadRecording downloads the WAV rendition of a finished recording and
// hands it to storage.
func (s *Service) UploadRecording(ctx context.Context, recordingURL, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download recording: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return s.storage.Upload(filename, "audio/wav", data)
}
