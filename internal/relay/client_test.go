package relay

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

// testClient builds a Client without a live socket; dispatch and Deliver
// only touch the connection when the egress buffer overflows, which these
// tests never do.
func testClient(t *testing.T, r *Relay, id string, identity Identity) *Client {
	t.Helper()
	c := newClient(id, identity, r, nil, zerolog.Nop())
	r.Register(c.id, c.userID, c.userName, c)
	return c
}

func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestDispatchMalformedFramesAreDropped(t *testing.T) {
	r := newTestRelay(t)
	c := testClient(t, r, "c1", Identity{UserID: "u1", UserName: "Alice"})
	observer := connect(t, r, "c2", "u2", "Bob")
	r.Join("c2", "S1")

	c.dispatch([]byte(`not json`))
	c.dispatch([]byte(`{"event":"no-such-event","data":{}}`))
	c.dispatch(frame(t, EventJoinSession, JoinSessionPayload{})) // missing sessionId
	c.dispatch(frame(t, EventSendMessage, SendMessagePayload{SessionID: "S1"}))
	c.dispatch([]byte(`{"event":"send-message","data":"not an object"}`))

	if len(observer.events) != 0 {
		t.Fatalf("malformed frames leaked %d events", len(observer.events))
	}
	if _, found := r.registry.Lookup("c1"); !found {
		t.Fatal("malformed frame must not terminate the connection")
	}
}

func TestDispatchIgnoresSpoofedIdentity(t *testing.T) {
	r := newTestRelay(t)
	c := testClient(t, r, "c1", Identity{UserID: "u1", UserName: "Alice"})
	observer := connect(t, r, "c2", "u2", "Bob")
	r.Join("c2", "S1")

	c.dispatch(frame(t, EventJoinSession, JoinSessionPayload{
		SessionID: "S1",
		UserID:    "u-spoofed",
		UserName:  "Mallory",
	}))

	joins := observer.all(EventUserJoined)
	if len(joins) != 1 {
		t.Fatalf("expected 1 join notice, got %d", len(joins))
	}
	notice := joins[0].Payload.(PresenceNotice)
	if notice.UserID != "u1" || notice.UserName != "Alice" {
		t.Fatalf("payload identity was trusted: %+v", notice)
	}

	c.dispatch(frame(t, EventSendMessage, SendMessagePayload{
		SessionID: "S1",
		UserID:    "u-spoofed",
		UserName:  "Mallory",
		Content:   "hi",
	}))

	msgs := observer.all(EventReceiveMessage)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msg := msgs[0].Payload.(ChatMessage); msg.UserID != "u1" || msg.UserName != "Alice" {
		t.Fatalf("message carried spoofed identity: %+v", msg)
	}
}

func TestClientDeliverEnqueuesEnvelope(t *testing.T) {
	r := newTestRelay(t)
	c := testClient(t, r, "c1", Identity{UserID: "u1", UserName: "Alice"})

	c.Deliver(EventUserJoined, PresenceNotice{UserID: "u2", UserName: "Bob"})

	select {
	case raw := <-c.send:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("frame is not a valid envelope: %v", err)
		}
		if env.Event != EventUserJoined {
			t.Fatalf("wrong event %q", env.Event)
		}
		var notice PresenceNotice
		if err := json.Unmarshal(env.Data, &notice); err != nil || notice.UserID != "u2" {
			t.Fatalf("bad payload: %s", env.Data)
		}
	default:
		t.Fatal("nothing enqueued")
	}
}

func TestDispatchSessionCreatedBroadcastsGlobally(t *testing.T) {
	r := newTestRelay(t)
	c := testClient(t, r, "c1", Identity{UserID: "u1", UserName: "Alice"})
	roomless := connect(t, r, "c2", "u2", "Bob")

	c.dispatch(frame(t, EventSessionCreated, SessionCreatedPayload{
		Session: json.RawMessage(`{"id":"S7"}`),
		UserID:  "u-spoofed",
	}))

	got := roomless.all(EventCalendarUpdated)
	if len(got) != 1 {
		t.Fatalf("expected 1 calendar-updated, got %d", len(got))
	}
	if notice := got[0].Payload.(CalendarNotice); notice.UserID != "u1" {
		t.Fatalf("creator attribution trusted the payload: %+v", notice)
	}
}
