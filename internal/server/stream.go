package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
)

const writeWait = 10 * time.Second

// streamRun upgrades to a websocket and sends the run's chunks followed by
// a result frame. Live runs are followed to the end; finished runs are
// replayed from the store. A {"type":"cancel"} frame stops a live run.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	live, isLive := s.hub.get(id)
	var stored storage.RunRecord
	if !isLive {
		rec, err := s.rt.Store().GetRun(r.Context(), id)
		if err != nil {
			writeJSON(w, statusOf(err), err.Error(), nil)
			return
		}
		stored = rec
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if isLive {
		s.followLive(conn, live)
	} else {
		s.replayStored(r.Context(), conn, stored)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (s *Server) followLive(conn *websocket.Conn, live *liveRun) {
	history, ch := live.subscribe()
	if ch != nil {
		defer live.unsubscribe(ch)
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == MessageCancel {
				s.log.WithField("run_id", live.sess.Run.ID).Info("cancel requested by client")
				live.sess.Run.Cancel()
			}
		}
	}()

	for i := range history {
		if send(conn, chunkMessage(history[i])) != nil {
			return
		}
	}
	if ch != nil {
	loop:
		for {
			select {
			case c, ok := <-ch:
				if !ok {
					break loop
				}
				if send(conn, chunkMessage(c)) != nil {
					return
				}
			case <-gone:
				return
			}
		}
	}

	res, ok := live.finished()
	if !ok {
		_ = send(conn, Message{Type: MessageResult, RunID: live.sess.Run.ID, Error: "client fell behind the stream"})
		return
	}
	_ = send(conn, resultMessage(res))
}

func (s *Server) replayStored(ctx context.Context, conn *websocket.Conn, rec storage.RunRecord) {
	chunks, err := s.rt.Store().Chunks(ctx, rec.ID)
	if err != nil {
		_ = send(conn, Message{Type: MessageResult, RunID: rec.ID, Error: err.Error()})
		return
	}
	for _, c := range chunks {
		chunk := workflow.Chunk{RunID: c.RunID, Seq: c.Seq, Phase: workflow.Phase(c.Phase), Node: c.Node, Delta: c.Delta}
		if send(conn, chunkMessage(chunk)) != nil {
			return
		}
	}

	msg := Message{
		Type:   MessageResult,
		RunID:  rec.ID,
		Status: string(rec.Status),
		Action: string(rec.Action),
		Error:  rec.Error,
	}
	if state, err := s.rt.Store().FinalState(ctx, rec.ID); err == nil {
		msg.Decision = models.Deref(state.FinalDecision)
	}
	_ = send(conn, msg)
}

// chunkMessage carries the raw delta plus its transcript flattened for
// clients that render conversations.
func chunkMessage(c workflow.Chunk) Message {
	m := Message{Type: MessageChunk, RunID: c.RunID, Chunk: &c}
	for _, t := range c.Delta.Transcript {
		resp := models.ChatRespFromTurn(t)
		resp.RunID = c.RunID
		resp.Seq = c.Seq
		resp.Phase = string(c.Phase)
		m.Turns = append(m.Turns, resp)
	}
	return m
}

func send(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
