package telephony

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Adapter owns one Twilio media-stream WebSocket. Inbound frames are decoded
// on a dedicated read loop and delivered over Frames(); the channel closes
// when the socket closes or errors. Outbound sends may come from a different
// goroutine than the reader, so writes are serialized with a mutex.
type Adapter struct {
	callID string
	conn   *websocket.Conn

	writeMu sync.Mutex
	frames  chan Frame
	done    chan struct{}

	closeOnce sync.Once
}

// NewAdapter wraps an upgraded media-stream connection. callID is used only
// for log correlation.
func NewAdapter(callID string, conn *websocket.Conn) *Adapter {
	a := &Adapter{
		callID: callID,
		conn:   conn,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	go a.readLoop()
	return a
}

// Frames returns the inbound frame stream. Closed on socket close/error.
func (a *Adapter) Frames() <-chan Frame { return a.frames }

func (a *Adapter) readLoop() {
	defer close(a.frames)
	for {
		mt, data, err := a.conn.ReadMessage()
		if err != nil {
			log.Printf("[%s] twilio socket read ended: %v", a.callID, err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			// One corrupt frame must not kill an otherwise healthy call.
			log.Printf("[%s] dropping frame: %v", a.callID, err)
			continue
		}
		select {
		case a.frames <- frame:
		case <-a.done:
			// Receiver is gone; a full buffer must not park this
			// goroutine past Close.
			return
		}
	}
}

// SendMedia relays one chunk of agent audio to the caller.
func (a *Adapter) SendMedia(streamSID, payload string) error {
	return a.writeJSON(encodeMedia(streamSID, payload))
}

// SendMark requests a playback acknowledgement token from Twilio.
func (a *Adapter) SendMark(streamSID, name string) error {
	return a.writeJSON(encodeMark(streamSID, name))
}

// SendClear tells Twilio to discard buffered-but-unplayed audio immediately.
func (a *Adapter) SendClear(streamSID string) error {
	return a.writeJSON(encodeClear(streamSID))
}

func (a *Adapter) writeJSON(v interface{}) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteJSON(v)
}

// Close shuts the underlying socket. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.conn.Close()
	})
	return err
}
