package httpserver

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/twilio/twilio-go/twiml"

	"github.com/demobites/voice-order/internal/config"
	"github.com/demobites/voice-order/internal/middleware"
	"github.com/demobites/voice-order/internal/recording"
)

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the echo router: health check, the signature-validated
// Twilio webhooks, and the media stream WebSocket endpoint.
func New(cfg config.Config, streamHandler http.Handler, recorder *recording.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(middleware.TwilioAuth(func() string { return cfg.TwilioAuthToken }))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/twilio/voice", handleVoice(cfg, recorder))
	e.POST("/twilio/recording-status", handleRecordingStatus(recorder))

	e.GET("/stream", echo.WrapHandler(streamHandler))

	return &Server{Router: e}
}

// handleVoice answers the incoming-call webhook with TwiML that greets the
// caller and bridges the call audio onto the media stream endpoint.
func handleVoice(cfg config.Config, recorder *recording.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		params, _ := c.Get("twilioParams").(map[string]string)
		callSID := params["CallSid"]
		from := params["From"]
		log.Printf("incoming call from %s, call sid: %s", from, callSID)

		if recorder != nil && recorder.Enabled() && callSID != "" {
			callbackURL := fmt.Sprintf("https://%s/twilio/recording-status", cfg.PublicHost)
			go func() {
				// the call must be in progress before a recording can attach
				time.Sleep(time.Second)
				if err := recorder.Start(callSID, callbackURL); err != nil {
					log.Printf("could not start recording: %v", err)
				}
			}()
		}

		streamURL := fmt.Sprintf("wss://%s/stream", cfg.PublicHost)
		doc, err := twiml.Voice([]twiml.Element{
			&twiml.VoiceSay{Message: cfg.Greeting},
			&twiml.VoiceConnect{
				InnerElements: []twiml.Element{&twiml.VoiceStream{Url: streamURL}},
			},
		})
		if err != nil {
			return c.String(http.StatusInternalServerError, "twiml generation failed")
		}
		return c.Blob(http.StatusOK, "text/xml", []byte(doc))
	}
}

func handleRecordingStatus(recorder *recording.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		params, _ := c.Get("twilioParams").(map[string]string)
		if recorder != nil {
			recorder.HandleStatus(params)
		}
		return c.String(http.StatusOK, "OK")
	}
}
