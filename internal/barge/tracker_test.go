package barge

import "testing"

func TestTracker_QueueDepthMatchesDeltasMinusMarks(t *testing.T) {
	tr := NewTracker()
	const n = 5
	for i := 0; i < n; i++ {
		if name := tr.NoteDelta(int64(i*20), "it1"); name != MarkName {
			t.Fatalf("unexpected mark name %q", name)
		}
		if tr.Depth() != i+1 {
			t.Fatalf("depth after %d deltas: got %d", i+1, tr.Depth())
		}
	}
	for i := 0; i < n; i++ {
		tr.ConfirmMark()
		if want := n - i - 1; tr.Depth() != want {
			t.Fatalf("depth after %d confirms: got %d want %d", i+1, tr.Depth(), want)
		}
	}
	if tr.Tracking() {
		t.Fatalf("playback clock must reset once the queue drains")
	}
}

func TestTracker_FirstDeltaPinsPlaybackStart(t *testing.T) {
	tr := NewTracker()
	tr.NoteDelta(0, "it1")
	if !tr.Tracking() || tr.PlaybackStartMs() != 0 {
		t.Fatalf("expected playback start pinned at 0")
	}
	// Later deltas of the same utterance must not move the clock.
	tr.NoteDelta(400, "it1")
	if tr.PlaybackStartMs() != 0 {
		t.Fatalf("playback start moved to %d", tr.PlaybackStartMs())
	}
	if tr.LastItemID() != "it1" {
		t.Fatalf("unexpected item id %q", tr.LastItemID())
	}
}

func TestTracker_NewUtteranceAfterDrainGetsFreshClock(t *testing.T) {
	tr := NewTracker()
	tr.NoteDelta(100, "it1")
	tr.ConfirmMark()
	tr.NoteDelta(900, "it2")
	if tr.PlaybackStartMs() != 900 {
		t.Fatalf("expected fresh clock at 900, got %d", tr.PlaybackStartMs())
	}
	if tr.LastItemID() != "it2" {
		t.Fatalf("unexpected item id %q", tr.LastItemID())
	}
}

func TestTracker_InterruptComputesElapsedAndClears(t *testing.T) {
	tr := NewTracker()
	tr.NoteDelta(0, "it1")
	tr.NoteDelta(0, "it1")

	intr, ok := tr.Interrupt(850)
	if !ok {
		t.Fatalf("expected interruption")
	}
	if intr.ItemID != "it1" || intr.ElapsedMs != 850 {
		t.Fatalf("unexpected interruption: %+v", intr)
	}
	if tr.Depth() != 0 || tr.Tracking() || tr.LastItemID() != "" {
		t.Fatalf("tracker state not cleared: depth=%d tracking=%v item=%q",
			tr.Depth(), tr.Tracking(), tr.LastItemID())
	}
}

func TestTracker_InterruptIsNoopWhenIdle(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Interrupt(500); ok {
		t.Fatalf("interrupt with no tracked utterance must be a no-op")
	}

	// All marks confirmed: the agent finished speaking, nothing to cut.
	tr.NoteDelta(0, "it1")
	tr.ConfirmMark()
	if _, ok := tr.Interrupt(500); ok {
		t.Fatalf("interrupt after full confirmation must be a no-op")
	}
}

func TestTracker_ConfirmWithNothingOutstanding(t *testing.T) {
	tr := NewTracker()
	tr.ConfirmMark() // must not panic or go negative
	if tr.Depth() != 0 {
		t.Fatalf("depth went negative")
	}
}

func TestTracker_ItemWithoutIDKeepsPrevious(t *testing.T) {
	tr := NewTracker()
	tr.NoteDelta(0, "it1")
	tr.NoteDelta(0, "")
	if tr.LastItemID() != "it1" {
		t.Fatalf("empty item id must not clobber the last one")
	}
}
