package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// CallState is the lifecycle state of the monitored call, as reported by
// the telephony provider through the backend's event socket.
type CallState string

const (
	CallRinging    CallState = "ringing"
	CallInProgress CallState = "in-progress"
	CallCompleted  CallState = "completed"
	CallFailed     CallState = "failed"
)

// CallEvent is one status update from the call event socket.
type CallEvent struct {
	Conference string    `json:"conference_id"`
	State      CallState `json:"state"`
	At         time.Time `json:"at"`
}

// Feed streams call status events for one conference over a websocket. The
// call transport itself stays with the telephony provider; this is status
// only, feeding the call monitor view.
type Feed struct {
	conn   *websocket.Conn
	events chan CallEvent

	closeOnce sync.Once
	done      chan struct{}
}

// DialFeed connects to the backend's call event socket for conferenceID.
func DialFeed(ctx context.Context, wsBaseURL, conferenceID, token string) (*Feed, error) {
	url := fmt.Sprintf("%s/calls/%s/events", wsBaseURL, conferenceID)
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("call event socket rejected: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("call event socket dial failed: %w", err)
	}

	f := &Feed{
		conn:   conn,
		events: make(chan CallEvent, 16),
		done:   make(chan struct{}),
	}
	go f.readLoop()
	return f, nil
}

// Events returns the event stream. The channel closes when the socket drops
// or the feed is closed; the caller decides whether to redial.
func (f *Feed) Events() <-chan CallEvent { return f.events }

// Close tears down the socket. Safe to call more than once.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		// Best effort: tell the peer we are leaving before cutting.
		deadline := time.Now().Add(time.Second)
		_ = f.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = f.conn.Close()
	})
	return err
}

// readLoop pumps events until the socket drops.
func (f *Feed) readLoop() {
	defer close(f.events)
	for {
		var ev CallEvent
		if err := f.conn.ReadJSON(&ev); err != nil {
			select {
			case <-f.done:
			default:
				log.Debug("call event socket dropped", "error", err)
			}
			return
		}
		select {
		case f.events <- ev:
		case <-f.done:
			return
		}
	}
}
