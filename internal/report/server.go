package report

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/vbet/internal/log"
	"github.com/chrissnell/vbet/internal/metrics"
	"github.com/chrissnell/vbet/pkg/responseformat"
)

const (
	requestLogSize  = 200
	shutdownTimeout = 5 * time.Second
)

// Server is a read-only HTTP API over the run directories below dir.
// Responses are JSON unless the request asks for MessagePack.
type Server struct {
	dir       string
	logger    *zap.SugaredLogger
	logs      *log.LogBuffer
	formatter *responseformat.Formatter
	Server    http.Server
}

// NewServer creates a report server for the runs stored below dir.
func NewServer(dir, addr string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		dir:       dir,
		logger:    logger,
		logs:      log.NewLogBuffer(requestLogSize),
		formatter: responseformat.NewFormatter(),
	}
	s.Server.Addr = addr
	s.Server.Handler = s.setupRouter()
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler { return s.Server.Handler }

// Start serves until ctx is cancelled. wg is released once the listener
// has stopped.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	s.logger.Infow("starting report server", "addr", s.Server.Addr, "dir", s.dir)
	wg.Add(1)

	go func() {
		defer wg.Done()
		if err := s.Server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Errorf("report server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down the report server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Server.Shutdown(sctx)
	}()
}

func (s *Server) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(s.logger, s.logs))

	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", s.listRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.getRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/summaries/{kind}", s.getSummaries).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/segments/{segment}", s.getSegment).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/layers/{layer}", s.getLayer).Methods(http.MethodGet)
	api.HandleFunc("/requests", s.getRequests).Methods(http.MethodGet)
	return router
}

func (s *Server) health(w http.ResponseWriter, req *http.Request) {
	s.respond(w, req, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, req *http.Request) {
	runs, err := ListManifests(s.dir)
	if err != nil {
		s.logger.Errorw("failed to list runs", "error", err)
		s.fail(w, req, http.StatusInternalServerError, "failed to list runs")
		return
	}
	infos := make([]RunInfo, 0, len(runs))
	for _, m := range runs {
		infos = append(infos, m.Info())
	}
	s.respond(w, req, http.StatusOK, infos)
}

func (s *Server) getRun(w http.ResponseWriter, req *http.Request) {
	m, ok := s.load(w, req)
	if !ok {
		return
	}
	s.respond(w, req, http.StatusOK, m)
}

func (s *Server) getSummaries(w http.ResponseWriter, req *http.Request) {
	m, ok := s.load(w, req)
	if !ok {
		return
	}
	rows, ok := m.Summaries(mux.Vars(req)["kind"])
	if !ok {
		s.fail(w, req, http.StatusNotFound, "unknown summary kind")
		return
	}

	if lp := req.URL.Query().Get("level_path"); lp != "" {
		path, err := strconv.ParseInt(lp, 10, 64)
		if err != nil {
			s.fail(w, req, http.StatusBadRequest, "invalid level_path parameter")
			return
		}
		filtered := make([]metrics.Summary, 0, len(rows))
		for _, r := range rows {
			if r.LevelPath == path {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if rows == nil {
		rows = []metrics.Summary{}
	}
	s.respond(w, req, http.StatusOK, rows)
}

func (s *Server) getSegment(w http.ResponseWriter, req *http.Request) {
	m, ok := s.load(w, req)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(req)["segment"], 10, 64)
	if err != nil {
		s.fail(w, req, http.StatusBadRequest, "invalid segment id")
		return
	}

	out := make(map[string]metrics.Summary)
	for _, kind := range metrics.Kinds {
		rows, _ := m.Summaries(kind)
		for _, r := range rows {
			if r.SegmentID == id {
				out[kind] = r
				break
			}
		}
	}
	if len(out) == 0 {
		s.fail(w, req, http.StatusNotFound, "segment not found")
		return
	}
	s.respond(w, req, http.StatusOK, out)
}

func (s *Server) getLayer(w http.ResponseWriter, req *http.Request) {
	m, ok := s.load(w, req)
	if !ok {
		return
	}
	name, ok := m.Outputs[mux.Vars(req)["layer"]]
	if !ok || !filepath.IsLocal(name) {
		s.fail(w, req, http.StatusNotFound, "layer not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(name)))
	if filepath.Ext(name) == ".vbg" {
		w.Header().Set("Content-Type", responseformat.ContentTypeMsgPack)
	}
	http.ServeFile(w, req, filepath.Join(s.runDir(m.ID), name))
}

func (s *Server) getRequests(w http.ResponseWriter, req *http.Request) {
	s.respond(w, req, http.StatusOK, s.logs.Entries())
}

func (s *Server) runDir(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String())
}

// load reads the manifest named by the {id} route variable, writing an
// error response when it cannot.
func (s *Server) load(w http.ResponseWriter, req *http.Request) (*Manifest, bool) {
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		s.fail(w, req, http.StatusBadRequest, "invalid run id")
		return nil, false
	}
	m, err := ReadManifest(s.runDir(id))
	if errors.Is(err, ErrNoRun) {
		s.fail(w, req, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Errorw("failed to read run", "run", id, "error", err)
		s.fail(w, req, http.StatusInternalServerError, "failed to read run")
		return nil, false
	}
	return m, true
}

func (s *Server) respond(w http.ResponseWriter, req *http.Request, status int, v any) {
	if err := s.formatter.WriteResponse(w, req, status, v); err != nil {
		s.logger.Warnw("failed to write response", "path", req.URL.Path, "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, req *http.Request, status int, msg string) {
	s.formatter.WriteError(w, req, status, msg)
}
