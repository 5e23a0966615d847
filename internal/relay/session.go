// Package relay owns one live phone call end to end: it multiplexes the
// Twilio media-stream socket and the realtime agent socket into a single
// serialized state machine and implements barge-in.
package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chadiek/call-relay/internal/agent"
	"github.com/chadiek/call-relay/internal/barge"
	"github.com/chadiek/call-relay/internal/persona"
	"github.com/chadiek/call-relay/internal/telephony"
)

// State is the call session lifecycle. Transitions only move forward; a
// session is discarded after Closed.
type State int

const (
	StateAwaitingStart State = iota
	StateConnectingAgent
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting-start"
	case StateConnectingAgent:
		return "connecting-agent"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TelephonyConn is the telephony leg as the session sees it.
type TelephonyConn interface {
	Frames() <-chan telephony.Frame
	SendMedia(streamSID, payload string) error
	SendMark(streamSID, name string) error
	SendClear(streamSID string) error
	Close() error
}

// AgentConn is the agent leg as the session sees it.
type AgentConn interface {
	Events() <-chan agent.Event
	AppendAudio(payload string) error
	Truncate(itemID string, audioEndMs int64) error
	Close() error
}

// AgentDialer opens the agent leg once the persona is known.
type AgentDialer func(callID string, p persona.Persona) (AgentConn, error)

// PersonaResolver maps a caller number to a persona. It must be total: a
// caller that cannot be resolved still gets a usable default.
type PersonaResolver func(callerID string) persona.Persona

// EndReport is handed to the post-call collaborators at teardown. The relay
// never waits on anything done with it.
type EndReport struct {
	CallSID  string
	Duration time.Duration
}

// Session is one call. The Run goroutine is the single writer of all mutable
// fields; the mutex makes them safely observable from outside the loop.
type Session struct {
	tel       TelephonyConn
	dialAgent AgentDialer
	resolve   PersonaResolver
	onEnd     func(EndReport)

	mu              sync.Mutex
	callID          string
	state           State
	streamSID       string
	persona         persona.Persona
	latestInboundMs int64
	tracker         *barge.Tracker

	agent     AgentConn
	startedAt time.Time
}

// NewSession wires one call. callID is the correlation id used until the
// start frame supplies the real call SID. onEnd may be nil.
func NewSession(callID string, tel TelephonyConn, dial AgentDialer, resolve PersonaResolver, onEnd func(EndReport)) *Session {
	return &Session{
		callID:    callID,
		tel:       tel,
		dialAgent: dial,
		resolve:   resolve,
		onEnd:     onEnd,
		state:     StateAwaitingStart,
		tracker:   barge.NewTracker(),
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	id := s.callID
	s.mu.Unlock()
	if prev != next {
		log.Printf("[%s] call state %s -> %s", id, prev, next)
	}
}

func (s *Session) id() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// Run drives the call until both legs are closed. It is the single owner of
// all session state; both sockets feed it and it alone applies effects.
func (s *Session) Run(ctx context.Context) {
	s.startedAt = time.Now()
	defer s.teardown()

	for {
		// The agent channel stays nil until the dial succeeds, which keeps
		// that select arm dormant.
		var agentEvents <-chan agent.Event
		if s.agent != nil {
			agentEvents = s.agent.Events()
		}

		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.tel.Frames():
			if !ok {
				log.Printf("[%s] telephony leg closed", s.id())
				return
			}
			if done := s.handleFrame(f); done {
				return
			}
		case ev, ok := <-agentEvents:
			if !ok {
				log.Printf("[%s] agent leg closed", s.id())
				return
			}
			s.handleAgentEvent(ev)
		}
	}
}

// handleFrame applies one telephony frame. Returns true when the call is over.
func (s *Session) handleFrame(f telephony.Frame) bool {
	switch f.Event {
	case telephony.EventStart:
		s.handleStart(f)
	case telephony.EventMedia:
		s.handleMedia(f)
	case telephony.EventMark:
		s.mu.Lock()
		s.tracker.ConfirmMark()
		s.mu.Unlock()
	case telephony.EventStop:
		log.Printf("[%s] stop frame received", s.id())
		return true
	}
	return false
}

func (s *Session) handleStart(f telephony.Frame) {
	if s.State() != StateAwaitingStart {
		log.Printf("[%s] ignoring duplicate start frame", s.id())
		return
	}
	// Persona is fixed for the remainder of the call from one snapshot read.
	p := s.resolve(f.Caller)

	s.mu.Lock()
	s.streamSID = f.StreamSID
	if f.CallSID != "" {
		s.callID = f.CallSID
	}
	s.persona = p
	id := s.callID
	s.mu.Unlock()

	log.Printf("[%s] stream %s started, caller %q, persona %q", id, f.StreamSID, f.Caller, p.Name)

	s.setState(StateConnectingAgent)
	ag, err := s.dialAgent(id, p)
	if err != nil {
		// No mid-call retry: a dropped interaction beats a silently
		// degraded one.
		log.Printf("[%s] agent dial failed, ending call: %v", id, err)
		s.setState(StateClosing)
		_ = s.tel.Close()
		return
	}
	s.agent = ag
}

func (s *Session) handleMedia(f telephony.Frame) {
	s.mu.Lock()
	s.latestInboundMs = f.TimestampMs
	st := s.state
	id := s.callID
	s.mu.Unlock()

	switch st {
	case StateActive:
		if err := s.agent.AppendAudio(f.Payload); err != nil {
			log.Printf("[%s] append audio failed: %v", id, err)
		}
	case StateConnectingAgent:
		// Loss during setup is bounded and brief; dropping beats buffering
		// stale audio into the agent's first turn.
		log.Printf("[%s] dropping media frame while agent connects", id)
	default:
		log.Printf("[%s] dropping media frame in state %s", id, st)
	}
}

func (s *Session) handleAgentEvent(ev agent.Event) {
	switch ev.Kind {
	case agent.KindReady:
		if s.State() == StateConnectingAgent {
			s.setState(StateActive)
		}
	case agent.KindAudioDelta:
		s.relayAudio(ev)
	case agent.KindSpeechStarted:
		s.handleBargeIn()
	case agent.KindError:
		// Non-fatal unless the socket itself closes.
		log.Printf("[%s] agent error event: %s", s.id(), ev.Err)
	}
}

func (s *Session) relayAudio(ev agent.Event) {
	s.mu.Lock()
	st := s.state
	sid := s.streamSID
	id := s.callID
	s.mu.Unlock()
	if st != StateActive || sid == "" {
		return
	}
	if err := s.tel.SendMedia(sid, ev.Payload); err != nil {
		log.Printf("[%s] media relay failed: %v", id, err)
		return
	}
	s.mu.Lock()
	name := s.tracker.NoteDelta(s.latestInboundMs, ev.ItemID)
	s.mu.Unlock()
	if err := s.tel.SendMark(sid, name); err != nil {
		log.Printf("[%s] mark request failed: %v", id, err)
	}
}

func (s *Session) handleBargeIn() {
	s.mu.Lock()
	intr, ok := s.tracker.Interrupt(s.latestInboundMs)
	sid := s.streamSID
	id := s.callID
	s.mu.Unlock()
	if !ok {
		// Agent was not speaking from the caller's perspective.
		return
	}
	log.Printf("[%s] barge-in: truncating %q at %dms", id, intr.ItemID, intr.ElapsedMs)
	if err := s.agent.Truncate(intr.ItemID, intr.ElapsedMs); err != nil {
		log.Printf("[%s] truncate failed: %v", id, err)
	}
	if err := s.tel.SendClear(sid); err != nil {
		log.Printf("[%s] clear failed: %v", id, err)
	}
}

// teardown closes whichever leg is still open and reports the final duration.
func (s *Session) teardown() {
	s.setState(StateClosing)
	if s.agent != nil {
		_ = s.agent.Close()
	}
	_ = s.tel.Close()
	duration := time.Since(s.startedAt)
	s.setState(StateClosed)
	id := s.id()
	log.Printf("[%s] call ended after %s", id, duration.Round(time.Millisecond))
	if s.onEnd != nil {
		s.onEnd(EndReport{CallSID: id, Duration: duration})
	}
}
