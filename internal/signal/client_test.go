package signal

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitEvent(t *testing.T, events <-chan Event, want EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == want {
				return ev
			}
			t.Fatalf("got event %v, want %v", ev.Kind, want)
		case <-deadline:
			t.Fatalf("timed out waiting for event %v", want)
		}
	}
}

// TestSendQueuesWhileDisconnected verifies the bounded outbound queue:
// messages buffer in order up to capacity, then overflow explicitly.
func TestSendQueuesWhileDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://unused", QueueCap: 50})

	for i := 0; i < 50; i++ {
		res, err := c.Send(&Message{Type: KindIceCandidate, CallID: fmt.Sprintf("c%d", i)})
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if res != Queued {
			t.Fatalf("Send %d result = %v, want Queued", i, res)
		}
	}

	if _, err := c.Send(&Message{Type: KindCallEnd}); !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("Send over capacity = %v, want ErrQueueOverflow", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 50 {
		t.Fatalf("queue holds %d messages, want 50", len(c.queue))
	}
	for i, msg := range c.queue {
		if want := fmt.Sprintf("c%d", i); msg.CallID != want {
			t.Errorf("queue[%d].CallID = %q, want %q", i, msg.CallID, want)
		}
	}
}

// TestDisconnectDiscardsQueue verifies an intentional disconnect drops
// buffered messages instead of replaying them on the next connect.
func TestDisconnectDiscardsQueue(t *testing.T) {
	c := New(Options{URL: "ws://unused"})
	if _, err := c.Send(&Message{Type: KindCallEnd}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	c.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 0 {
		t.Errorf("queue holds %d messages after Disconnect, want 0", len(c.queue))
	}
	if c.state != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.state)
	}
}

// TestConnectLifecycle runs a real WebSocket round trip: the token travels
// as a query parameter, pre-queued messages drain in order on open, inbound
// frames surface as Message events, a malformed frame surfaces as an Error
// event, and a server close surfaces as a Close event.
func TestConnectLifecycle(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Message, 4)
	gotToken := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Collect the drained queue.
		for i := 0; i < 2; i++ {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				t.Errorf("server read %d: %v", i, err)
				return
			}
			received <- msg
		}

		conn.WriteJSON(Message{Type: KindCallInviteAck, CallID: "c1"})
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
	}))
	defer srv.Close()

	c := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:          "tok&en",
		ReconnectDelay: time.Hour, // keep the test to a single connection
	})
	defer c.Disconnect()

	c.Send(&Message{Type: KindCallInvite, To: "b@x.com"})
	c.Send(&Message{Type: KindIceCandidate, CallID: "c0"})

	c.Connect()

	waitEvent(t, c.Events(), EventOpen)
	if tok := <-gotToken; tok != "tok&en" {
		t.Errorf("token query param = %q, want %q", tok, "tok&en")
	}

	first, second := <-received, <-received
	if first.Type != KindCallInvite || second.Type != KindIceCandidate {
		t.Errorf("drained queue as %v then %v, want invite then candidate", first.Type, second.Type)
	}

	ev := waitEvent(t, c.Events(), EventMessage)
	if ev.Message == nil || ev.Message.Type != KindCallInviteAck || ev.Message.CallID != "c1" {
		t.Errorf("message event = %+v, want invite ack c1", ev.Message)
	}

	if ev := waitEvent(t, c.Events(), EventError); ev.Err == nil {
		t.Error("error event carries no error")
	}

	ev = waitEvent(t, c.Events(), EventClose)
	if ev.Code != websocket.CloseGoingAway {
		t.Errorf("close code = %d, want %d", ev.Code, websocket.CloseGoingAway)
	}
}

// TestReconnectAfterClose verifies the client redials after an unintended
// close, and that Disconnect suppresses further attempts.
func TestReconnectAfterClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection immediately.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 20 * time.Millisecond,
	})
	defer c.Disconnect()

	c.Connect()

	waitEvent(t, c.Events(), EventOpen)
	waitEvent(t, c.Events(), EventClose)
	waitEvent(t, c.Events(), EventOpen)

	if n := dials.Load(); n != 2 {
		t.Errorf("server saw %d dials, want 2", n)
	}
	if got := c.State(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}

	c.Disconnect()
	time.Sleep(60 * time.Millisecond)
	if n := dials.Load(); n != 2 {
		t.Errorf("server saw %d dials after Disconnect, want still 2", n)
	}
}
