package protocol

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/danmuck/techread/internal/testutil/testlog"
	"github.com/google/uuid"
)

func TestCheckStatus(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name       string
		status     int
		wantErr    error
		tooLarge   bool
		wantServer bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, wantErr: ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrServer, wantServer: true},
		{name: "created is not success", status: http.StatusCreated, wantErr: ErrServer, wantServer: true},
		{name: "internal", status: http.StatusInternalServerError, wantErr: ErrServer, wantServer: true},
		{name: "too large", status: http.StatusRequestEntityTooLarge, wantErr: ErrServer, wantServer: true, tooLarge: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckStatus("https://techread.local/v1/upload/x", tc.status)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			var serverErr *ServerError
			if got := errors.As(err, &serverErr); got != tc.wantServer {
				t.Fatalf("errors.As ServerError=%v want %v", got, tc.wantServer)
			}
			if tc.wantServer && serverErr.Status != tc.status {
				t.Fatalf("unexpected status: %d", serverErr.Status)
			}
			if got := errors.Is(err, ErrPayloadTooLarge); got != tc.tooLarge {
				t.Fatalf("errors.Is ErrPayloadTooLarge=%v want %v", got, tc.tooLarge)
			}
		})
	}
}

func TestValidSubtype(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		typ     MessageType
		subtype MessageSubtype
		want    bool
	}{
		{MessageTypeProgress, SubtypeProgressStarted, true},
		{MessageTypeProgress, SubtypeProgressCompleted, true},
		{MessageTypeProgress, SubtypeErrorInternal, false},
		{MessageTypeError, SubtypeErrorInternal, true},
		{MessageTypeRejection, SubtypeRejectionPaperSizeLimitExceeded, true},
		{MessageTypeRejection, SubtypeProgressStarted, false},
		{MessageTypeAsk, MessageSubtype(AskPageThumbnailKind), true},
		{MessageTypeAsk, "NOT_AN_ASK", false},
		{"BOGUS", SubtypeProgressStarted, false},
	}
	for _, tc := range tests {
		if got := ValidSubtype(tc.typ, tc.subtype); got != tc.want {
			t.Fatalf("ValidSubtype(%s, %s)=%v want %v", tc.typ, tc.subtype, got, tc.want)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	testlog.Start(t)

	id := uuid.New()
	raw := `{"request_id":"` + id.String() + `","message_type":"ASK","message_subtype":"PAGE_THUMBNAIL","payload_url":"https://techread.local/v1/payload/a"}`
	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.RequestID != id {
		t.Fatalf("unexpected request id: %s", msg.RequestID)
	}
	kind, ok := msg.AskKind()
	if !ok || kind != AskPageThumbnailKind {
		t.Fatalf("unexpected ask kind: %q ok=%v", kind, ok)
	}
	if !msg.HasPayloadReference() || msg.PayloadBytes != nil {
		t.Fatalf("unexpected payload state: %+v", msg)
	}
	if msg.Terminal() {
		t.Fatalf("ask result must not be terminal")
	}
}

func TestDecodeMessageIgnoresWirePayloadBytes(t *testing.T) {
	testlog.Start(t)

	raw := `{"request_id":"` + uuid.NewString() + `","message_type":"PROGRESS","message_subtype":"STARTED","payload_bytes":"aGVsbG8="}`
	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.PayloadBytes != nil {
		t.Fatalf("payload_bytes must be client-local, got %q", msg.PayloadBytes)
	}
}

func TestDecodeMessageRejectsMalformed(t *testing.T) {
	testlog.Start(t)

	id := uuid.NewString()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{`},
		{name: "missing request id", raw: `{"message_type":"PROGRESS","message_subtype":"STARTED"}`},
		{name: "subtype family mismatch", raw: `{"request_id":"` + id + `","message_type":"ERROR","message_subtype":"STARTED"}`},
		{name: "unknown type", raw: `{"request_id":"` + id + `","message_type":"NOPE","message_subtype":"STARTED"}`},
		{name: "dict and url", raw: `{"request_id":"` + id + `","message_type":"ASK","message_subtype":"VARIANT_MEASURES","payload_dict":{"a":1},"payload_url":"https://x/y"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tc.raw))
			if !errors.Is(err, ErrServer) || !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("expected server/invalid message error, got %v", err)
			}
		})
	}
}

func TestMessageTerminal(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		msg  Message
		want bool
	}{
		{Message{Type: MessageTypeProgress, Subtype: SubtypeProgressStarted}, false},
		{Message{Type: MessageTypeProgress, Subtype: SubtypeProgressCompleted}, true},
		{Message{Type: MessageTypeError, Subtype: SubtypeErrorInternal}, true},
		{Message{Type: MessageTypeRejection, Subtype: SubtypeRejectionComplexityExceeded}, true},
		{Message{Type: MessageTypeAsk, Subtype: MessageSubtype(AskVariantMeasuresKind)}, false},
	}
	for _, tc := range tests {
		if got := tc.msg.Terminal(); got != tc.want {
			t.Fatalf("%s/%s terminal=%v want %v", tc.msg.Type, tc.msg.Subtype, got, tc.want)
		}
	}
}

func TestRequestWireShape(t *testing.T) {
	testlog.Start(t)

	asks := []Ask{
		AskPageThumbnail{ThumbnailLimits{MaxWidth: 400}},
		AskVariantMeasures{},
	}
	req := NewRequest(uuid.New(), asks, "techread-go/0.1.0", "")
	asks[0] = AskSheetThumbnail{}
	if req.Asks[0].Kind() != AskPageThumbnailKind {
		t.Fatalf("request must own its ask slice")
	}

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if strings.Contains(string(body), "development_key") {
		t.Fatalf("empty development key must be omitted: %s", body)
	}
	var shape map[string]any
	if err := json.Unmarshal(body, &shape); err != nil {
		t.Fatalf("unmarshal shape: %v", err)
	}
	list, ok := shape["asks"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("unexpected asks: %#v", shape["asks"])
	}
	first := list[0].(map[string]any)
	if first["ask_type"] != "PAGE_THUMBNAIL" || first["max_width"] != float64(400) {
		t.Fatalf("unexpected first ask: %#v", first)
	}

	var back Request
	if err := json.Unmarshal(body, &back); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	thumb, ok := back.Asks[0].(AskPageThumbnail)
	if !ok || thumb.MaxWidth != 400 {
		t.Fatalf("unexpected decoded ask: %#v", back.Asks[0])
	}
	if back.RequestID != req.RequestID || back.ClientVersion != req.ClientVersion {
		t.Fatalf("request mismatch: in=%+v out=%+v", req, back)
	}
}

func TestUnmarshalAskUnknownKind(t *testing.T) {
	testlog.Start(t)

	if _, err := UnmarshalAsk([]byte(`{"ask_type":"HOLOGRAM"}`)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	for _, kind := range AllAskKinds() {
		ask, err := NewAsk(kind)
		if err != nil {
			t.Fatalf("new ask %s: %v", kind, err)
		}
		if ask.Kind() != kind {
			t.Fatalf("kind mismatch: %s != %s", ask.Kind(), kind)
		}
	}
}

func TestCommandEnvelope(t *testing.T) {
	testlog.Start(t)

	id := uuid.New()
	cmd, err := NewCommand(ActionRead, ReadRequest{RequestID: id})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	want := `{"action":"READ","message":"{\"request_id\":\"` + id.String() + `\"}"}`
	if string(body) != want {
		t.Fatalf("unexpected command:\n got %s\nwant %s", body, want)
	}
	var read ReadRequest
	if err := cmd.Decode(&read); err != nil || read.RequestID != id {
		t.Fatalf("decode read: %+v err=%v", read, err)
	}
	if _, err := NewCommand("DELETE", nil); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for unknown action, got %v", err)
	}
}

func TestUploadEnvelopeAndHash(t *testing.T) {
	testlog.Start(t)

	body, err := EncodeUpload(FileKindDrawing, []byte("hello"))
	if err != nil {
		t.Fatalf("encode upload: %v", err)
	}
	if string(body) != `{"drawing":"aGVsbG8="}` {
		t.Fatalf("unexpected upload body: %s", body)
	}
	files, err := DecodeUpload(body)
	if err != nil || string(files[FileKindDrawing]) != "hello" {
		t.Fatalf("decode upload: %v %v", files, err)
	}
	if got := AttachmentHash([]byte("hello")); len(got) != 64 {
		t.Fatalf("unexpected hash length: %q", got)
	}
	if AttachmentHash([]byte("a")) == AttachmentHash([]byte("b")) {
		t.Fatalf("hash must depend on content")
	}
}

func TestParseArchitectureStatus(t *testing.T) {
	testlog.Start(t)

	if s, ok := ParseArchitectureStatus("DEPLOYING"); !ok || s != ArchitectureDeploying {
		t.Fatalf("unexpected status: %q ok=%v", s, ok)
	}
	if _, ok := ParseArchitectureStatus("deployed"); ok {
		t.Fatalf("status strings are case-sensitive")
	}
	if _, ok := ParseArchitectureStatus("EXPLODED"); ok {
		t.Fatalf("unknown status must not map")
	}
}
