package telephony

import (
	"encoding/json"
	"fmt"
)

// Twilio Media Streams frame kinds.
const (
	EventStart = "start"
	EventMedia = "media"
	EventMark  = "mark"
	EventStop  = "stop"
	EventClear = "clear"
)

// Frame is one decoded inbound media-stream message.
type Frame struct {
	Event string

	// start
	StreamSID string
	CallSID   string
	Caller    string

	// media
	TimestampMs int64
	Payload     string // base64 audio, passed through opaque

	// mark
	MarkName string
}

// inboundEnvelope mirrors the wire JSON for all inbound event kinds.
type inboundEnvelope struct {
	Event string `json:"event"`
	Start *struct {
		StreamSid        string            `json:"streamSid"`
		CallSid          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Timestamp json.Number `json:"timestamp"`
		Payload   string      `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
}

// DecodeFrame parses one inbound message. Unknown event kinds and messages
// missing their required section are an error; the caller drops them without
// ending the call.
func DecodeFrame(data []byte) (Frame, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	switch env.Event {
	case EventStart:
		if env.Start == nil || env.Start.StreamSid == "" {
			return Frame{}, fmt.Errorf("start frame missing streamSid")
		}
		return Frame{
			Event:     EventStart,
			StreamSID: env.Start.StreamSid,
			CallSID:   env.Start.CallSid,
			Caller:    env.Start.CustomParameters["caller"],
		}, nil
	case EventMedia:
		if env.Media == nil {
			return Frame{}, fmt.Errorf("media frame missing media section")
		}
		ts, err := env.Media.Timestamp.Int64()
		if err != nil {
			return Frame{}, fmt.Errorf("media frame bad timestamp: %w", err)
		}
		return Frame{Event: EventMedia, TimestampMs: ts, Payload: env.Media.Payload}, nil
	case EventMark:
		if env.Mark == nil {
			return Frame{}, fmt.Errorf("mark frame missing mark section")
		}
		return Frame{Event: EventMark, MarkName: env.Mark.Name}, nil
	case EventStop:
		return Frame{Event: EventStop}, nil
	case "":
		return Frame{}, fmt.Errorf("frame missing event field")
	default:
		return Frame{}, fmt.Errorf("unknown event %q", env.Event)
	}
}

// Outbound frame payloads. Twilio requires the streamSid on every send.

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type outboundEnvelope struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

func encodeMedia(streamSID, payload string) outboundEnvelope {
	return outboundEnvelope{Event: EventMedia, StreamSID: streamSID, Media: &mediaPayload{Payload: payload}}
}

func encodeMark(streamSID, name string) outboundEnvelope {
	return outboundEnvelope{Event: EventMark, StreamSID: streamSID, Mark: &markPayload{Name: name}}
}

func encodeClear(streamSID string) outboundEnvelope {
	return outboundEnvelope{Event: EventClear, StreamSID: streamSID}
}
