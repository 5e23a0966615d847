package telephony

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// The frame buffer holds 64 entries; a caller streaming faster than the
// relay drains must not park the read goroutine past Close.
func TestAdapter_CloseUnblocksParkedReader(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sent := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for i := 0; i < 80; i++ {
			frame := fmt.Sprintf(`{"event":"media","media":{"timestamp":"%d","payload":"AAA="}}`, i)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				t.Errorf("write frame %d: %v", i, err)
				return
			}
		}
		close(sent)
		_, _, _ = conn.ReadMessage() // hold the socket open until the client closes
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	a := NewAdapter("t1", conn)
	<-sent

	// Nobody drains Frames(), so the buffer fills and the read loop parks
	// on the 65th delivery.
	deadline := time.Now().Add(2 * time.Second)
	for len(a.frames) < cap(a.frames) {
		if time.Now().After(deadline) {
			t.Fatalf("buffer never filled: %d/%d", len(a.frames), cap(a.frames))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The buffered frames stay readable and the channel must then close,
	// proving the read goroutine exited rather than staying parked.
	received := 0
	for {
		select {
		case _, ok := <-a.Frames():
			if !ok {
				if received < cap(a.frames) {
					t.Fatalf("expected buffered frames before close, got %d", received)
				}
				return
			}
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("frames channel never closed; %d received", received)
		}
	}
}
