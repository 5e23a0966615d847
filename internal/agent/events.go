package agent

// Kind classifies decoded realtime events for the relay loop.
type Kind int

const (
	// KindReady fires once the session is configured and may receive audio.
	KindReady Kind = iota
	// KindAudioDelta carries one chunk of synthesized agent audio.
	KindAudioDelta
	// KindSpeechStarted means the caller began speaking (server VAD).
	KindSpeechStarted
	// KindError is an error reported by the endpoint; non-fatal unless the
	// socket itself closes.
	KindError
)

// Event is one decoded inbound realtime event relevant to the relay. Events
// from the observational catalog (session lifecycle, token accounting,
// transcripts) are logged inside the session and never surface here.
type Event struct {
	Kind    Kind
	ItemID  string
	Payload string // base64 audio for KindAudioDelta
	Err     string // diagnostic for KindError
}

// Wire-level event type strings of the realtime protocol.
const (
	typeSessionUpdate  = "session.update"
	typeAppendAudio    = "input_audio_buffer.append"
	typeItemCreate     = "conversation.item.create"
	typeItemTruncate   = "conversation.item.truncate"
	typeResponseCreate = "response.create"

	typeAudioDelta      = "response.output_audio.delta"
	typeSpeechStarted   = "input_audio_buffer.speech_started"
	typeError           = "error"
	typeUserTranscript  = "conversation.item.input_audio_transcription.delta"
	typeAgentTranscript = "response.output_audio_transcript.done"
)

// logEventTypes are recognized and logged but cause no relay state change.
var logEventTypes = map[string]bool{
	"session.created":                   true,
	"session.updated":                   true,
	"rate_limits.updated":               true,
	"response.done":                     true,
	"response.content.done":             true,
	"input_audio_buffer.committed":      true,
	"input_audio_buffer.speech_stopped": true,
	typeSpeechStarted:                   true,
	typeError:                           true,
}
