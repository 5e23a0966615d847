package agent

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/call-relay/internal/persona"
)

// DefaultRealtimeURL is the OpenAI realtime WebSocket endpoint.
const DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

// DefaultSetupDelay lets the handshake settle before session.update is sent.
// The endpoint occasionally rejects configuration sent immediately after the
// upgrade completes.
const DefaultSetupDelay = 100 * time.Millisecond

// Config carries what Dial needs besides the persona.
type Config struct {
	APIKey string
	// BaseURL overrides DefaultRealtimeURL (tests point it at a local server).
	BaseURL string
	// SetupDelay overrides DefaultSetupDelay; zero means the default.
	SetupDelay time.Duration
	// Greeting, when non-empty, seeds a synthetic user turn after
	// configuration so the agent speaks first.
	Greeting string
}

// Session owns the outbound realtime WebSocket for one call. Decoded events
// relevant to the relay arrive on Events(); the channel closes when the
// socket closes or errors.
type Session struct {
	callID string
	conn   *websocket.Conn
	events chan Event

	writeMu sync.Mutex

	mu        sync.Mutex
	connected bool
	closed    bool

	closeOnce sync.Once
}

// Dial opens the realtime connection for the given persona, schedules the
// session configuration, and starts the event reader. A failed dial is fatal
// to the call; the caller tears the session down.
func Dial(callID string, cfg Config, p persona.Persona) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key missing")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultRealtimeURL
	}
	delay := cfg.SetupDelay
	if delay == 0 {
		delay = DefaultSetupDelay
	}

	q := url.Values{}
	q.Set("model", p.Model)
	q.Set("temperature", strconv.FormatFloat(p.Temperature, 'g', -1, 64))
	wsURL := base + "?" + q.Encode()

	headers := map[string][]string{
		"Authorization": {"Bearer " + cfg.APIKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("[%s] realtime dial failed with status %d", callID, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect realtime endpoint: %w", err)
	}

	s := &Session{
		callID: callID,
		conn:   conn,
		events: make(chan Event, 64),
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	go s.readLoop()

	// Deferred so the relay loop is never blocked waiting on the handshake
	// to settle.
	time.AfterFunc(delay, func() {
		if err := s.configure(p, cfg.Greeting); err != nil {
			log.Printf("[%s] realtime session configure failed: %v", callID, err)
			_ = s.Close()
			return
		}
		s.deliver(Event{Kind: KindReady})
	})

	log.Printf("[%s] connected to realtime endpoint for persona %q", callID, p.Name)
	return s, nil
}

// Events returns the inbound event stream.
func (s *Session) Events() <-chan Event { return s.events }

// sessionUpdate mirrors the GA realtime session.update shape.
type sessionUpdate struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	Type             string       `json:"type"`
	Model            string       `json:"model"`
	OutputModalities []string     `json:"output_modalities"`
	Audio            audioPayload `json:"audio"`
	Instructions     string       `json:"instructions"`
}

type audioPayload struct {
	Input  audioInput  `json:"input"`
	Output audioOutput `json:"output"`
}

type audioInput struct {
	Format        formatPayload `json:"format"`
	TurnDetection turnDetection `json:"turn_detection"`
}

type audioOutput struct {
	Format formatPayload `json:"format"`
	Voice  string        `json:"voice"`
	Speed  float64       `json:"speed,omitempty"`
}

type formatPayload struct {
	Type string `json:"type"`
}

type turnDetection struct {
	Type string `json:"type"`
}

func (s *Session) configure(p persona.Persona, greeting string) error {
	update := sessionUpdate{
		Type: typeSessionUpdate,
		Session: sessionPayload{
			Type:             "realtime",
			Model:            p.Model,
			OutputModalities: []string{"audio"},
			Audio: audioPayload{
				Input: audioInput{
					Format:        formatPayload{Type: "audio/pcmu"},
					TurnDetection: turnDetection{Type: "server_vad"},
				},
				Output: audioOutput{
					Format: formatPayload{Type: "audio/pcmu"},
					Voice:  p.Voice,
					Speed:  p.Speed,
				},
			},
			Instructions: p.Instructions,
		},
	}
	if err := s.writeJSON(update); err != nil {
		return err
	}
	if greeting != "" {
		seed := map[string]interface{}{
			"type": typeItemCreate,
			"item": map[string]interface{}{
				"type": "message",
				"role": "user",
				"content": []map[string]string{
					{"type": "input_text", "text": greeting},
				},
			},
		}
		if err := s.writeJSON(seed); err != nil {
			return err
		}
		return s.RequestResponse()
	}
	return nil
}

// AppendAudio forwards one base64 caller-audio payload to the endpoint.
func (s *Session) AppendAudio(payload string) error {
	if !s.isConnected() {
		return fmt.Errorf("realtime session not connected")
	}
	return s.writeJSON(map[string]string{"type": typeAppendAudio, "audio": payload})
}

// Truncate tells the endpoint the caller heard only audioEndMs of the given
// item. A no-op when the session is already gone; interruption races with
// teardown and must not error.
func (s *Session) Truncate(itemID string, audioEndMs int64) error {
	if !s.isConnected() || itemID == "" {
		return nil
	}
	return s.writeJSON(map[string]interface{}{
		"type":          typeItemTruncate,
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMs,
	})
}

// RequestResponse asks the agent to produce a response now.
func (s *Session) RequestResponse() error {
	if !s.isConnected() {
		return fmt.Errorf("realtime session not connected")
	}
	return s.writeJSON(map[string]string{"type": typeResponseCreate})
}

// Close shuts the socket; the read loop then closes Events().
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// inboundEvent covers every field the relay cares about across event types.
type inboundEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

func (s *Session) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	}()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Printf("[%s] realtime socket read ended: %v", s.callID, err)
			return
		}
		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[%s] dropping undecodable realtime event: %v", s.callID, err)
			continue
		}
		if logEventTypes[ev.Type] {
			log.Printf("[%s] realtime event: %s", s.callID, ev.Type)
		}
		switch ev.Type {
		case typeAudioDelta:
			if ev.Delta == "" {
				continue
			}
			s.deliver(Event{Kind: KindAudioDelta, ItemID: ev.ItemID, Payload: ev.Delta})
		case typeSpeechStarted:
			s.deliver(Event{Kind: KindSpeechStarted})
		case typeError:
			s.deliver(Event{Kind: KindError, Err: string(ev.Error)})
		case typeUserTranscript:
			if txt := strings.TrimSpace(ev.Transcript); txt != "" {
				log.Printf("[%s] caller: %s", s.callID, txt)
			}
		case typeAgentTranscript:
			if txt := strings.TrimSpace(ev.Transcript); txt != "" {
				log.Printf("[%s] agent: %s", s.callID, txt)
			}
		}
	}
}

func (s *Session) deliver(ev Event) {
	// The ready event arrives from a timer goroutine, so delivery has to
	// tolerate racing with the read loop closing the channel.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Backpressure here means the relay loop is gone; dropping is the
		// only option that cannot deadlock the reader.
		log.Printf("[%s] realtime event buffer full, dropping event %d", s.callID, ev.Kind)
	}
}
