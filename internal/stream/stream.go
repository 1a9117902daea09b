package stream

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/demobites/voice-order/internal/call"
)

// Controller is the call engine the media stream feeds into.
type Controller interface {
	StartCall(streamSID, callSID string, t call.Transport, greeting string) *call.Session
	HandleMedia(streamSID string, frame []byte)
	HandleMark(streamSID, name string)
	EndCall(streamSID string)
}

// inboundMessage covers the Twilio Media Streams events we care about:
// connected, start, media, mark, stop.
type inboundMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

type startPayload struct {
	StreamSID string `json:"streamSid"`
	CallSID   string `json:"callSid"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Twilio connects without a browser origin
		return true
	},
}

// Handler terminates one Twilio media stream per WebSocket connection.
type Handler struct {
	controller Controller
	greeting   string
}

func NewHandler(controller Controller, greeting string) *Handler {
	return &Handler{controller: controller, greeting: greeting}
}

// ServeHTTP upgrades the connection and pumps media stream events into the
// controller until the stream stops or the socket dies.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	var streamSID string
	defer func() {
		if streamSID != "" {
			h.controller.EndCall(streamSID)
		}
	}()

	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			if streamSID != "" && !websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] ws read error: %v", streamSID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m inboundMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}

		switch m.Event {
		case "connected":
			// protocol preamble, nothing to do yet
		case "start":
			if m.Start == nil || m.Start.StreamSID == "" {
				continue
			}
			streamSID = m.Start.StreamSID
			t := newTransport(conn, streamSID)
			h.controller.StartCall(streamSID, m.Start.CallSID, t, h.greeting)
		case "media":
			if streamSID == "" || m.Media == nil {
				continue
			}
			frame, derr := base64.StdEncoding.DecodeString(m.Media.Payload)
			if derr != nil || len(frame) == 0 {
				continue
			}
			h.controller.HandleMedia(streamSID, frame)
		case "mark":
			if streamSID == "" || m.Mark == nil {
				continue
			}
			h.controller.HandleMark(streamSID, m.Mark.Name)
		case "stop":
			return
		}
	}
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type outboundMark struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      markPayload `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

var errTransportClosed = errors.New("stream: transport closed")

// wsTransport is the outbound half of a media stream. gorilla connections
// allow one concurrent writer, so every send is serialized through mu.
type wsTransport struct {
	conn      *websocket.Conn
	streamSID string

	mu     sync.Mutex
	closed bool
}

func newTransport(conn *websocket.Conn, streamSID string) *wsTransport {
	return &wsTransport{conn: conn, streamSID: streamSID}
}

func (t *wsTransport) writeJSON(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) SendMedia(payload []byte) error {
	return t.writeJSON(outboundMedia{
		Event:     "media",
		StreamSID: t.streamSID,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(payload)},
	})
}

func (t *wsTransport) SendMark(name string) error {
	return t.writeJSON(outboundMark{
		Event:     "mark",
		StreamSID: t.streamSID,
		Mark:      markPayload{Name: name},
	})
}

func (t *wsTransport) SendClear() error {
	return t.writeJSON(outboundClear{Event: "clear", StreamSID: t.streamSID})
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call complete"),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
