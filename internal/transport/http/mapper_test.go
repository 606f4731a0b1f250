package http

import (
	"encoding/json"
	"testing"

	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/proto"
)

func TestInboundToCommandFileShareDecodesBase64(t *testing.T) {
	data, _ := json.Marshal(proto.FileShareData{To: "bob", Filename: "a.txt", FileData: "aGVsbG8=", FileType: "text/plain", Timestamp: "t"})

	cmd, perr := inboundToCommand(proto.Inbound{Type: proto.InboundTypeFileShare, Data: data})
	if perr != nil {
		t.Fatalf("unexpected protocol error: %+v", perr)
	}
	if cmd.Kind != core.CommandShareFile || cmd.To != "bob" || string(cmd.File.Data) != "hello" || cmd.File.MimeType != "text/plain" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestInboundToCommandMalformedPayload(t *testing.T) {
	for _, typ := range []string{
		proto.InboundTypeAuthenticate,
		proto.InboundTypePrivateMessage,
		proto.InboundTypeBroadcastMessage,
		proto.InboundTypeFileShare,
	} {
		_, perr := inboundToCommand(proto.Inbound{Type: typ, Data: json.RawMessage(`[1,2]`)})
		if perr == nil || perr.Code != core.ErrCodeBadRequest {
			t.Fatalf("%s: expected bad_request, got %+v", typ, perr)
		}
	}
}

func TestOutboundFromEventStatus(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind:   core.EventUserStatus,
		Status: &core.StatusChange{Username: "alice", Online: false},
	})
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"event","event":"user_status","data":{"username":"alice","status":"offline","onlineUsers":[]}}`
	if string(raw) != want {
		t.Fatalf("unexpected frame:\n got %s\nwant %s", raw, want)
	}
}

func TestOutboundFromEventError(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: core.ErrCodeNotFound, Message: "gone"}})
	if out.Type != proto.OutboundTypeError || out.Error.Code != core.ErrCodeNotFound || out.Error.Msg != "gone" {
		t.Fatalf("unexpected error frame: %+v", out)
	}
}
