package devserver

import (
	"encoding/json"
	"time"

	"github.com/danmuck/techread/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// controlConn is one websocket client. All writes happen on the read loop.
type controlConn struct {
	srv    *Server
	conn   *websocket.Conn
	scheme string
	host   string
	log    zerolog.Logger
}

func (s *Server) handleControl(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("devserver.control upgrade failed")
		return
	}
	s.stats.connections.Add(1)
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.Request.Host
	if s.cfg.Behavior.PayloadHost != "" {
		host = s.cfg.Behavior.PayloadHost
	}
	cc := &controlConn{srv: s, conn: conn, scheme: scheme, host: host, log: s.log}
	cc.serve()
}

func (cc *controlConn) serve() {
	defer cc.conn.Close()
	for {
		_, raw, err := cc.conn.ReadMessage()
		if err != nil {
			cc.log.Debug().Err(err).Msg("devserver.control closed")
			return
		}
		var cmd protocol.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			cc.closeWith(websocket.CloseUnsupportedData, "invalid command")
			return
		}
		if !cc.dispatch(cmd) {
			return
		}
	}
}

// dispatch reports whether the connection stays open.
func (cc *controlConn) dispatch(cmd protocol.Command) bool {
	switch cmd.Action {
	case protocol.ActionInitialize:
		var req protocol.Request
		if err := cmd.Decode(&req); err != nil || req.Validate() != nil {
			cc.closeWith(websocket.CloseUnsupportedData, "invalid request")
			return false
		}
		cc.srv.stats.initializations.Add(1)
		if cc.srv.cfg.Behavior.RefuseInitialize {
			return cc.send(reply(req.RequestID, protocol.MessageTypeRejection, protocol.SubtypeRejectionComplexityExceeded))
		}
		cc.srv.addJob(req)
		return cc.send(reply(req.RequestID, protocol.MessageTypeProgress, protocol.SubtypeProgressInitializationSuccess))
	case protocol.ActionRead:
		var read protocol.ReadRequest
		if err := cmd.Decode(&read); err != nil {
			cc.closeWith(websocket.CloseUnsupportedData, "invalid read")
			return false
		}
		cc.srv.stats.reads.Add(1)
		return cc.read(read.RequestID)
	default:
		cc.closeWith(websocket.CloseUnsupportedData, "unknown action")
		return false
	}
}

func (cc *controlConn) read(id requestID) bool {
	j, ok := cc.srv.job(id)
	if !ok {
		return cc.send(reply(id, protocol.MessageTypeError, protocol.SubtypeErrorInternal))
	}
	if !cc.send(reply(id, protocol.MessageTypeProgress, protocol.SubtypeProgressStarted)) {
		return false
	}

	b := cc.srv.cfg.Behavior
	switch {
	case b.DropAfterStarted:
		_ = cc.conn.Close()
		return false
	case b.StallAfterStarted:
		return true
	case b.CloseTooBig:
		cc.closeWith(websocket.CloseMessageTooBig, "message too big")
		return false
	case b.MaxDocumentBytes > 0 && len(j.files[protocol.FileKindDrawing]) > b.MaxDocumentBytes:
		return cc.send(reply(id, protocol.MessageTypeRejection, protocol.SubtypeRejectionPaperSizeLimitExceeded))
	case b.FailInternal:
		return cc.send(reply(id, protocol.MessageTypeError, protocol.SubtypeErrorInternal))
	}

	for _, ask := range j.req.Asks {
		msg := cc.srv.answer(j, ask, cc.scheme, cc.host)
		if !cc.send(msg) {
			return false
		}
	}
	return cc.send(reply(id, protocol.MessageTypeProgress, protocol.SubtypeProgressCompleted))
}

func (cc *controlConn) send(msg protocol.Message) bool {
	_ = cc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := cc.conn.WriteJSON(msg); err != nil {
		cc.log.Debug().Err(err).Msg("devserver.control write failed")
		return false
	}
	return true
}

func (cc *controlConn) closeWith(code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = cc.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func reply(id requestID, t protocol.MessageType, sub protocol.MessageSubtype) protocol.Message {
	return protocol.Message{RequestID: id, Type: t, Subtype: sub}
}
