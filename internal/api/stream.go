package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"beamsched/internal/model"
)

const (
	heartbeatEvery = 15 * time.Second
	wsPongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// finalEvent is the terminal event for a run that already finished.
func finalEvent(run model.Run) SSEEvent {
	typ := EventCompleted
	if run.Status == model.RunFailed {
		typ = EventFailed
	}
	return SSEEvent{Type: typ, Data: runSummary(run)}
}

// subscribeRun subscribes before re-reading the run so a run finishing in
// between is never missed. done is set when the run is already terminal.
func (s *Server) subscribeRun(r *http.Request, run model.Run) (ch chan SSEEvent, done *SSEEvent) {
	ch = s.Broker.Subscribe(run.ID)
	if cur, err := s.Store.GetRun(r.Context(), run.TenantID, run.ID); err == nil && cur.Done() {
		evt := finalEvent(cur)
		return ch, &evt
	}
	return ch, nil
}

// RunEventsHandler streams run events as server-sent events until the run
// finishes or the client goes away.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, done := s.subscribeRun(r, run)
	defer s.Broker.Unsubscribe(run.ID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", run.ID, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}

	heartbeat()
	if done != nil {
		send(*done)
		return
	}
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.terminal() {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// RunWSHandler streams run events over a WebSocket as {type,data} JSON
// messages, closing normally after the terminal event.
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch, done := s.subscribeRun(r, run)
	defer s.Broker.Unsubscribe(run.ID, ch)

	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	if done != nil {
		_ = conn.WriteJSON(done)
		closeNormal()
		return
	}

	// read loop only handles control frames and notices the client leaving
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if evt.terminal() {
				closeNormal()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
