package devserver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/techread/internal/protocol"
	"github.com/google/uuid"
)

type requestID = uuid.UUID

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type job struct {
	req   protocol.Request
	files map[protocol.FileKind][]byte
}

func (s *Server) addJob(req protocol.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[req.RequestID.String()] = &job{req: req, files: make(map[protocol.FileKind][]byte)}
}

func (s *Server) job(id requestID) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id.String()]
	return j, ok
}

// answer builds the ASK message for one requested ask. Thumbnails are served
// by reference; measures and dimensions inline.
func (s *Server) answer(j *job, ask protocol.Ask, scheme, host string) protocol.Message {
	id := j.req.RequestID
	drawing := j.files[protocol.FileKindDrawing]
	msg := protocol.Message{
		RequestID: id,
		Type:      protocol.MessageTypeAsk,
		Subtype:   protocol.MessageSubtype(ask.Kind()),
	}

	switch ask.Kind() {
	case protocol.AskPageThumbnailKind, protocol.AskSheetThumbnailKind, protocol.AskSectionalThumbnailKind:
		name := strings.ToLower(string(ask.Kind()))
		s.mu.Lock()
		s.payloads[payloadKey(id.String(), name)] = thumbnail(ask.Kind(), drawing)
		s.mu.Unlock()
		msg.PayloadURL = fmt.Sprintf("%s://%s/%s/payload/%s/%s", scheme, host, s.cfg.Version, id, name)
	case protocol.AskVariantMeasuresKind:
		msg.PayloadDict = map[string]any{
			"measures": []any{
				map[string]any{"label": "Ø 12 H7", "nominal_size": 12.0, "unit": "mm"},
				map[string]any{"label": "25 ±0.1", "nominal_size": 25.0, "unit": "mm"},
			},
		}
	case protocol.AskPartOverallDimensionsKind:
		msg.PayloadDict = map[string]any{
			"length": 120.0,
			"width":  80.0,
			"height": 25.0,
			"unit":   "mm",
		}
	}
	return msg
}

// thumbnail is a deterministic PNG-signed blob derived from the drawing.
func thumbnail(kind protocol.AskKind, drawing []byte) []byte {
	sum := sha256.Sum256(drawing)
	var b bytes.Buffer
	b.Write(pngSignature)
	b.WriteString(string(kind))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(sum[:]))
	return b.Bytes()
}

func payloadKey(requestID, name string) string {
	return requestID + "/" + name
}
