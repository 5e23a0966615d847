// Package barge tracks in-flight agent audio so caller interruptions can be
// cut at the right millisecond.
//
// Twilio confirms playback only through application-level mark tokens, one per
// relayed audio chunk, so the elapsed time a caller actually heard is
// approximated from the caller's own inbound media clock: the timestamp when
// the utterance's first chunk went out versus the latest inbound timestamp
// when the caller started talking over the agent.
package barge

// MarkName is the acknowledgement token requested alongside every relayed
// audio chunk.
const MarkName = "responsePart"

// Interruption is what the relay must act on when a caller barges in.
type Interruption struct {
	// ItemID identifies the agent utterance to truncate. May be empty when
	// the endpoint never attached an item id; clear is still issued.
	ItemID string
	// ElapsedMs is how much of the utterance the caller heard.
	ElapsedMs int64
}

// Tracker keeps the FIFO of outstanding marks plus the playback clock for the
// current agent utterance. It is not goroutine safe; the relay loop is its
// single owner.
type Tracker struct {
	pending []string

	playbackStartMs int64
	tracking        bool

	lastItemID string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker { return &Tracker{} }

// NoteDelta records one relayed audio chunk. The first delta of an utterance
// pins the playback start to the caller's current inbound timestamp; every
// delta updates the owning item and pushes one mark token. Returns the mark
// name the adapter must request.
func (t *Tracker) NoteDelta(latestInboundMs int64, itemID string) string {
	if !t.tracking {
		t.tracking = true
		t.playbackStartMs = latestInboundMs
	}
	if itemID != "" {
		t.lastItemID = itemID
	}
	t.pending = append(t.pending, MarkName)
	return MarkName
}

// ConfirmMark consumes one playback acknowledgement. Confirmations map to
// requests strictly in order, so the oldest token is popped regardless of
// name. A confirmation with nothing outstanding is ignored. Draining the
// queue ends the utterance: the playback clock resets so the next delta pins
// a fresh start.
func (t *Tracker) ConfirmMark() {
	if len(t.pending) == 0 {
		return
	}
	t.pending = t.pending[1:]
	if len(t.pending) == 0 {
		t.tracking = false
		t.playbackStartMs = 0
	}
}

// Interrupt computes the barge-in action for a speech-started signal at the
// given inbound timestamp. It acts only when audio is both in flight (marks
// outstanding) and mid-utterance (playback clock set); otherwise the caller
// gets (zero, false) and nothing changes. On action all tracking state is
// cleared in one step.
func (t *Tracker) Interrupt(latestInboundMs int64) (Interruption, bool) {
	if len(t.pending) == 0 || !t.tracking {
		return Interruption{}, false
	}
	intr := Interruption{
		ItemID:    t.lastItemID,
		ElapsedMs: latestInboundMs - t.playbackStartMs,
	}
	t.pending = nil
	t.lastItemID = ""
	t.tracking = false
	t.playbackStartMs = 0
	return intr, true
}

// Depth reports how many marks are outstanding.
func (t *Tracker) Depth() int { return len(t.pending) }

// Tracking reports whether an utterance's playback clock is currently set.
func (t *Tracker) Tracking() bool { return t.tracking }

// LastItemID returns the item referenced by the most recently relayed delta.
func (t *Tracker) LastItemID() string { return t.lastItemID }

// PlaybackStartMs returns the pinned playback start; valid only while
// Tracking reports true.
func (t *Tracker) PlaybackStartMs() int64 { return t.playbackStartMs }
