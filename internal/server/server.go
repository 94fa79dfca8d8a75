package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/app"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/processing"
	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// StartRequest starts a run. Zero-valued settings fall back to the config.
type StartRequest struct {
	Ticker          string   `json:"ticker"`
	Date            string   `json:"date"`
	Analysts        []string `json:"analysts,omitempty"`
	MaxDebateRounds *int     `json:"max_debate_rounds,omitempty"`
	MaxRiskRounds   *int     `json:"max_risk_rounds,omitempty"`
	OnlineTools     *bool    `json:"online_tools,omitempty"`
}

// ReflectRequest carries the realized return of a finished run. Async
// requests are answered with 202 before the lessons are written.
type ReflectRequest struct {
	Returns float64 `json:"returns"`
	Async   bool    `json:"async,omitempty"`
}

// Message is one websocket frame sent to clients.
type Message struct {
	Type     string          `json:"type"`
	Chunk    *workflow.Chunk `json:"chunk,omitempty"`
	RunID    string          `json:"run_id,omitempty"`
	Status   string          `json:"status,omitempty"`
	Action   string          `json:"action,omitempty"`
	Decision string          `json:"decision,omitempty"`
	Error    string          `json:"error,omitempty"`

	Turns   []*models.ChatResp      `json:"turns,omitempty"`
	Summary *models.TradingDecision `json:"summary,omitempty"`
}

// ClientMessage is a websocket frame read from clients.
type ClientMessage struct {
	Type string `json:"type"`
}

const (
	MessageChunk  = "chunk"
	MessageResult = "result"
	MessageCancel = "cancel"
)

type Server struct {
	rt       *app.Runtime
	log      logrus.FieldLogger
	hub      *hub
	router   *mux.Router
	upgrader websocket.Upgrader

	// runs started over HTTP outlive their request
	ctx    context.Context
	cancel context.CancelFunc
}

func New(rt *app.Runtime, log logrus.FieldLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		rt:     rt,
		log:    logging.OrDiscard(log).WithField("component", "server"),
		hub:    newHub(),
		ctx:    ctx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/runs", s.startRun).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.getRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/state", s.getState).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/chunks", s.getChunks).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/cancel", s.cancelRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/reflect", s.reflectRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/stream", s.streamRun)
	r.HandleFunc("/config", s.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/config", s.putConfig).Methods(http.MethodPut)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then stops live runs and shuts
// the listener down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close asks every live run to stop.
func (s *Server) Close() {
	s.hub.cancelAll()
	s.cancel()
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	date := time.Now()
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
			return
		}
		date = d
	}

	rc := s.rt.Config().RunConfig()
	if len(req.Analysts) > 0 {
		rc.SelectedAnalysts = req.Analysts
	}
	if req.MaxDebateRounds != nil {
		rc.MaxDebateRounds = *req.MaxDebateRounds
	}
	if req.MaxRiskRounds != nil {
		rc.MaxRiskDiscussRounds = *req.MaxRiskRounds
	}
	if req.OnlineTools != nil {
		rc.OnlineTools = *req.OnlineTools
	}
	if err := rc.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	sess, err := s.rt.Start(s.ctx, req.Ticker, date, &rc)
	if err != nil {
		writeJSON(w, statusOf(err), err.Error(), nil)
		return
	}
	id := sess.Run.ID
	live := newLiveRun(sess)
	s.hub.add(id, live)
	go func() {
		res, err := sess.Stream(live.publish)
		if err != nil {
			s.log.WithError(err).WithField("run_id", id).Warn("run persistence incomplete")
		}
		live.finish(res)
		s.hub.remove(id)
	}()

	writeJSON(w, http.StatusAccepted, "Accepted", map[string]string{
		"run_id": id,
		"ticker": sess.Run.Ticker,
		"date":   sess.Run.Date.Format(time.DateOnly),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.rt.Store().ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, "Ok", runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.rt.Store().GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, statusOf(err), err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, "Ok", run)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	state, err := s.rt.Store().FinalState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, statusOf(err), err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, "Ok", state)
}

func (s *Server) getChunks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.rt.Store().GetRun(r.Context(), id); err != nil {
		writeJSON(w, statusOf(err), err.Error(), nil)
		return
	}
	chunks, err := s.rt.Store().Chunks(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, "Ok", chunks)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	live, ok := s.hub.get(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, "run is not live", nil)
		return
	}
	live.sess.Run.Cancel()
	writeJSON(w, http.StatusAccepted, "Accepted", nil)
}

func (s *Server) reflectRun(w http.ResponseWriter, r *http.Request) {
	var req ReflectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	id := mux.Vars(r)["id"]
	if req.Async {
		if _, err := s.rt.ReflectAsync(s.ctx, id, req.Returns); err != nil {
			writeJSON(w, statusOf(err), err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, "Accepted", map[string]string{"run_id": id})
		return
	}
	lessons, err := s.rt.Reflect(r.Context(), id, req.Returns)
	if err != nil && len(lessons) == 0 {
		writeJSON(w, statusOf(err), err.Error(), nil)
		return
	}
	msg := "Ok"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, http.StatusOK, msg, lessons)
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "Ok", s.rt.Config().Redact())
}

func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	if err := s.rt.PatchConfig(body); err != nil {
		writeJSON(w, statusOf(err), err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, "Ok", map[string]uint64{"engine_version": s.rt.Engine().Version})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, config.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Code: code, Msg: msg, Data: data})
}

func resultMessage(res workflow.Result) Message {
	m := Message{
		Type:   MessageResult,
		RunID:  res.RunID,
		Status: string(res.Status),
		Action: string(res.Action),
	}
	if res.State != nil {
		m.Decision = strings.TrimSpace(models.Deref(res.State.FinalDecision))
		m.Summary = processing.ProcessSignal(res.State)
	}
	if res.Err != nil {
		m.Error = res.Err.Error()
	}
	return m
}
