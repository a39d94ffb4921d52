package devserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/danmuck/techread/internal/testutil/testlog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const testToken = "dev-token"

func newTestServer(t *testing.T, b Behavior) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(Config{
		Validator: auth.StaticToken{Token: testToken},
		Behavior:  b,
		Logger:    testlog.Start(t),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1", header)
}

func sendCommand(t *testing.T, conn *websocket.Conn, action protocol.Action, body any) {
	t.Helper()
	cmd, err := protocol.NewCommand(action, body)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	msg, err := protocol.DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func upload(t *testing.T, ts *httptest.Server, id uuid.UUID, content []byte) int {
	t.Helper()
	body, err := protocol.EncodeUpload(protocol.FileKindDrawing, content)
	if err != nil {
		t.Fatalf("encode upload: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/upload/"+id.String(), bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Behavior{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestControlRequiresToken(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, ts := newTestServer(t, Behavior{})
			_, resp, err := dial(t, ts, tc.token)
			if err == nil {
				t.Fatalf("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %+v", tc.status, resp)
			}
			if got := srv.Stats(); got.Connections != 0 || got.Unauthorized != 1 {
				t.Fatalf("unexpected stats: %+v", got)
			}
		})
	}
}

func TestReadFlowServesAsksInOrder(t *testing.T) {
	srv, ts := newTestServer(t, Behavior{})
	conn, _, err := dial(t, ts, testToken)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := protocol.NewRequest(uuid.New(), []protocol.Ask{
		protocol.AskPageThumbnail{},
		protocol.AskPartOverallDimensions{},
	}, "test/1", "")
	sendCommand(t, conn, protocol.ActionInitialize, req)
	if msg := readMessage(t, conn); msg.Subtype != protocol.SubtypeProgressInitializationSuccess {
		t.Fatalf("expected INITIALIZATION_SUCCESS, got %s", msg.Subtype)
	}
	if status := upload(t, ts, req.RequestID, []byte("drawing")); status != http.StatusOK {
		t.Fatalf("expected upload 200, got %d", status)
	}
	sendCommand(t, conn, protocol.ActionRead, protocol.ReadRequest{RequestID: req.RequestID})

	started := readMessage(t, conn)
	thumb := readMessage(t, conn)
	dims := readMessage(t, conn)
	done := readMessage(t, conn)
	if started.Subtype != protocol.SubtypeProgressStarted || done.Subtype != protocol.SubtypeProgressCompleted {
		t.Fatalf("expected STARTED..COMPLETED, got %s..%s", started.Subtype, done.Subtype)
	}
	if thumb.Subtype != protocol.MessageSubtype(protocol.AskPageThumbnailKind) || thumb.PayloadURL == "" {
		t.Fatalf("expected page thumbnail by reference, got %+v", thumb)
	}
	if dims.PayloadDict["unit"] != "mm" {
		t.Fatalf("expected inline dimensions, got %+v", dims.PayloadDict)
	}

	get, _ := http.NewRequest(http.MethodGet, thumb.PayloadURL, nil)
	get.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(get)
	if err != nil {
		t.Fatalf("fetch payload: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	payload, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !bytes.HasPrefix(payload, pngSignature) {
		t.Fatalf("expected png signature, got %q", payload[:8])
	}
	if got := srv.Stats(); got.Initializations != 1 || got.Reads != 1 || got.Uploads != 1 || got.PayloadFetches != 1 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestUploadForUnknownRequest(t *testing.T) {
	_, ts := newTestServer(t, Behavior{})
	if status := upload(t, ts, uuid.New(), []byte("x")); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestArchitectureStatus(t *testing.T) {
	_, ts := newTestServer(t, Behavior{})
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/architecture_status/GPU_V1", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != string(protocol.ArchitectureDeployed) {
		t.Fatalf("expected DEPLOYED, got %q", body.Status)
	}
}
