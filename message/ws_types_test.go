package message

import (
	"errors"
	"testing"

	"github.com/cydxin/pulse-sdk/cons"
)

func TestDecode_AuthenticateAcceptsStringAndObject(t *testing.T) {
	for _, raw := range []string{
		`{"type":"authenticate","data":"abc.def.ghi"}`,
		`{"type":"authenticate","data":{"token":"abc.def.ghi"}}`,
	} {
		evt, _, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		auth, ok := evt.(Authenticate)
		if !ok || auth.Token != "abc.def.ghi" {
			t.Fatalf("unexpected event %#v", evt)
		}
	}
}

func TestDecode_SendMessageRequiresObject(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"send_message","data":{"room_id":"42","message":"hi"}}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}

	evt, pid, err := Decode([]byte(`{"type":"send_message","packet_id":"p1","data":{"room_id":"42","message":{"text":"hi"}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pid != "p1" {
		t.Fatalf("expected packet id p1, got %q", pid)
	}
	if evt.EventType() != cons.EventSendMessage {
		t.Fatalf("unexpected type %s", evt.EventType())
	}
}

func TestDecode_RejectsBadRoomID(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"join_chat","data":{"room_id":"chat:42/../x"}}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecode_UnknownAndMalformed(t *testing.T) {
	if _, _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
	if _, _, err := Decode([]byte(`{"type":"drop_tables"}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecode_SocialActions(t *testing.T) {
	evt, _, err := Decode([]byte(`{"type":"follow_user","data":{"actor_id":1,"target_id":2}}`))
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if a := evt.(SocialAction); a.Action != cons.NotifyFollow {
		t.Fatalf("expected follow action, got %q", a.Action)
	}

	if _, _, err := Decode([]byte(`{"type":"comment_post","data":{"actor_id":1,"target_id":2,"subject_id":"p9"}}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("comment without text should fail, got %v", err)
	}

	evt, _, err = Decode([]byte(`{"type":"remove_reaction","data":{"room_id":"42","subject_id":"m1","user_id":3,"emoji":"👍"}}`))
	if err != nil {
		t.Fatalf("remove_reaction: %v", err)
	}
	if evt.EventType() != cons.EventRemoveReaction {
		t.Fatalf("unexpected type %s", evt.EventType())
	}
}

func TestEncodeWithPacket_RoundTripsPacketID(t *testing.T) {
	frame, err := EncodeWithPacket(cons.EventAuthenticate, Authenticate{Token: "tok"}, "p-1")
	if err != nil {
		t.Fatalf("EncodeWithPacket: %v", err)
	}
	evt, packetID, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if packetID != "p-1" || evt.(Authenticate).Token != "tok" {
		t.Fatalf("unexpected decode: %v %q", evt, packetID)
	}

	plain, _ := Encode(cons.EventAuthenticated, nil)
	if string(plain) != `{"type":"authenticated"}` {
		t.Fatalf("packet_id should be omitted when empty, got %s", plain)
	}
}
