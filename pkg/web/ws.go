package web

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/state"
)

const wsWriteTimeout = 10 * time.Second

// handleWS streams a StateView after every state transition. Only the latest
// state matters, so a slow client skips intermediate ones.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	var (
		mu     sync.Mutex
		latest state.WorkingState
	)
	notify := make(chan struct{}, 1)
	cancel := s.session.Subscribe(func(ws state.WorkingState) {
		mu.Lock()
		latest = ws
		mu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer cancel()

	// Reads only detect the peer going away; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap state.WorkingState) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(NewStateView(snap))
	}

	if err := send(s.session.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-notify:
			mu.Lock()
			snap := latest
			mu.Unlock()
			if err := send(snap); err != nil {
				s.logger.Debug("ws write", zap.Error(err))
				return
			}
		}
	}
}
