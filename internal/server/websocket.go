package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
)

const writeWait = 10 * time.Second

// handleDashboardWS holds a dashboard session open for as long as the
// socket lives. The client gets the full record set on connect and after
// every change, plus each status transition as it is applied.
func (s *Server) handleDashboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	release, err := s.service.OpenSession()
	if err != nil {
		_ = writeMessage(conn, DashboardMessage{Type: MessageError, Error: err.Error()})
		return
	}
	defer release()

	snapshots, stopSnapshots, err := s.service.Subscribe(ctx)
	if err != nil {
		_ = writeMessage(conn, DashboardMessage{Type: MessageError, Error: err.Error()})
		return
	}
	defer stopSnapshots()

	transitions, stopTransitions := s.service.Transitions()
	defer stopTransitions()

	// The reader only exists to notice the client going away and to
	// process control frames.
	pongWait := 2 * s.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	s.logger.Info("dashboard connected", logging.Field{Key: "remote", Value: r.RemoteAddr})
	defer s.logger.Info("dashboard disconnected", logging.Field{Key: "remote", Value: r.RemoteAddr})

	for {
		var msg DashboardMessage
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		case recs, ok := <-snapshots:
			if !ok {
				return
			}
			if recs == nil {
				recs = []model.ScanRecord{}
			}
			msg = DashboardMessage{Type: MessageRecords, Records: recs}
		case ev, ok := <-transitions:
			if !ok {
				return
			}
			msg = DashboardMessage{Type: MessageTransition, Transition: &ev}
		}

		if err := writeMessage(conn, msg); err != nil {
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg DashboardMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
