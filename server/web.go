/*
	Package server runs the HTTP front end: project upload and listing,
	session lifecycle, editing actions, undo/redo, and plane rendering.
*/
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/twinj/uuid"
	"github.com/zenazn/goji/web"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/edit"
	"github.com/celllabel/celled/format"
	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/session"
	"github.com/celllabel/celled/storage"
)

// WebAPIVersion is the version of the HTTP API.
const WebAPIVersion = "1.0"

// maxUploadBytes caps direct container uploads.
const maxUploadBytes = 2 * celled.Giga

// Service is the running server: store, sessions, renderer, activity log.
type Service struct {
	config   *Config
	store    *storage.Store
	sessions *session.Manager
	render   *renderer
	activity *storage.ActivityLog
	started  time.Time
}

// New wires a service from config.  The caller owns Close.
func New(cfg *Config) (*Service, error) {
	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	activity, err := storage.NewActivityLog(cfg.Kafka)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Service{
		config:   cfg,
		store:    store,
		sessions: session.NewManager(cfg.SessionIdle()),
		render:   newRenderer(cfg.Server.RenderCacheMB),
		activity: activity,
		started:  time.Now(),
	}, nil
}

// Close releases the store and activity log.
func (s *Service) Close() {
	if err := s.activity.Close(); err != nil {
		celled.Errorf("closing activity log: %v\n", err)
	}
	if err := s.store.Close(); err != nil {
		celled.Errorf("closing project store: %v\n", err)
	}
}

// Serve blocks on the HTTP listener until the context is canceled.
func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Server.Address,
		Handler: s.handler(),
	}
	go s.reapLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	celled.Infof("web server listening at %s\n", s.config.Server.Address)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Service) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Reap(); n > 0 {
				celled.Infof("reaped %d idle session(s)\n", n)
			}
		}
	}
}

func (s *Service) handler() http.Handler {
	mux := web.New()

	mux.Get("/api/health", s.healthHandler)
	mux.Get("/api/info", s.infoHandler)

	mux.Get("/api/projects", s.listProjectsHandler)
	mux.Post("/api/projects", s.createProjectHandler)
	mux.Post("/api/projects/:project/open", s.openProjectHandler)

	mux.Get("/api/session/:token", s.sessionInfoHandler)
	mux.Delete("/api/session/:token", s.closeSessionHandler)
	mux.Get("/api/session/:token/tracks", s.tracksHandler)
	mux.Post("/api/session/:token/edit/:action", s.editHandler)
	mux.Post("/api/session/:token/undo", s.undoHandler)
	mux.Post("/api/session/:token/redo", s.redoHandler)
	mux.Post("/api/session/:token/view", s.viewHandler)
	mux.Post("/api/session/:token/select", s.selectHandler)
	mux.Delete("/api/session/:token/select", s.clearSelectHandler)
	mux.Get("/api/session/:token/raw/:frame", s.rawHandler)
	mux.Get("/api/session/:token/labeled/:frame", s.labeledHandler)
	mux.Get("/api/session/:token/download", s.downloadHandler)
	mux.Post("/api/session/:token/export", s.exportHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
	})
	return c.Handler(mux)
}

// ---- handlers ----

func (s *Service) healthHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Service) infoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"api_version":   WebAPIVersion,
		"uptime":        time.Since(s.started).String(),
		"open_sessions": s.sessions.Len(),
		"note":          s.config.Server.Note,
	})
}

func (s *Service) listProjectsHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListProjects()
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []storage.ProjectMeta{}
	}
	respondJSON(w, list)
}

// createProjectHandler ingests a container, stores it, and opens a session.
// The container arrives either as the request body or, with a JSON body
// naming bucket and key, from blob storage.
func (s *Service) createProjectHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	var blob []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Bucket string `json:"bucket"`
			Key    string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondStatus(w, http.StatusBadRequest, fmt.Errorf("bad request body: %v", err))
			return
		}
		if req.Bucket == "" {
			req.Bucket = s.config.Bucket.URL
		}
		if req.Bucket == "" || req.Key == "" {
			respondStatus(w, http.StatusBadRequest, fmt.Errorf("need bucket and key to load from blob storage"))
			return
		}
		if name == "" {
			name = req.Key
		}
		blob, err = storage.ReadObject(r.Context(), req.Bucket, req.Key)
		if err != nil {
			respondError(w, err)
			return
		}
	} else {
		blob, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			respondStatus(w, http.StatusBadRequest, fmt.Errorf("reading upload: %v", err))
			return
		}
	}
	if name == "" {
		respondStatus(w, http.StatusBadRequest, fmt.Errorf("need a name query parameter or bucket key to infer the container kind"))
		return
	}

	sess, err := s.openSession(name, blob)
	if err != nil {
		respondError(w, err)
		return
	}
	vol := sess.Volume()
	meta := storage.ProjectMeta{
		ID:       uuid.NewV4().String(),
		Name:     name,
		Kind:     containerKind(name),
		Tracking: sess.Tracking,
		Frames:   vol.NumFrames,
		Height:   vol.Height,
		Width:    vol.Width,
		Features: vol.NumFeatures,
	}
	if err := s.store.SaveProject(meta, blob); err != nil {
		respondError(w, err)
		return
	}
	s.sessions.Put(sess)
	s.publish(sess, "create_project", nil, 0)

	payload, err := newSessionPayload(sess)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, payload)
}

func (s *Service) openProjectHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	meta, blob, err := s.store.LoadProject(c.URLParams["project"])
	if err != nil {
		respondStatus(w, http.StatusNotFound, err)
		return
	}
	sess, err := s.openSession(meta.Name, blob)
	if err != nil {
		respondError(w, err)
		return
	}
	s.sessions.Put(sess)
	payload, err := newSessionPayload(sess)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, payload)
}

// openSession decodes a container into a fresh session.  trk containers
// open tracking sessions with their lineage applied.
func (s *Service) openSession(name string, blob []byte) (*session.Session, error) {
	if containerKind(name) == "track" {
		p, err := format.ReadTrk(bytes.NewReader(blob))
		if err != nil {
			return nil, err
		}
		sess, err := session.New(name, p.Labels, p.Raw, true)
		if err != nil {
			return nil, err
		}
		if err := sess.ApplyLineage(p.Lineage); err != nil {
			return nil, err
		}
		return sess, nil
	}
	p, err := format.ReadNpz(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, err
	}
	return session.New(name, p.Labels, p.Raw, false)
}

func containerKind(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".trk") || strings.HasSuffix(lower, ".trks") {
		return "track"
	}
	return "zstack"
}

func (s *Service) session(c web.C, w http.ResponseWriter) *session.Session {
	sess, err := s.sessions.Get(c.URLParams["token"])
	if err != nil {
		respondStatus(w, http.StatusNotFound, err)
		return nil
	}
	return sess
}

func (s *Service) sessionInfoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	payload, err := newSessionPayload(sess)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, payload)
}

func (s *Service) closeSessionHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	if sess.Dirty() {
		celled.Warningf("closing session %s (%s) with unsaved changes\n", sess.Token, sess.Name)
	}
	s.sessions.Drop(sess.Token)
	w.WriteHeader(http.StatusOK)
}

func (s *Service) tracksHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	tracks, err := format.EncodeLineage(sess.Tracks())
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(tracks)
}

func (s *Service) editHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, celled.Mega))
	if err != nil {
		respondStatus(w, http.StatusBadRequest, err)
		return
	}
	args, err := edit.ParseArgs(body)
	if err != nil {
		respondStatus(w, http.StatusBadRequest, err)
		return
	}
	action := c.URLParams["action"]
	start := time.Now()
	res, err := sess.Do(action, args)
	if err != nil {
		respondError(w, err)
		return
	}
	s.publish(sess, action, res.ChangedFrames, time.Since(start))

	payload, err := newEditPayload(sess, res.ChangedFrames, res.LabelsChanged)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, payload)
}

func (s *Service) undoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	s.historyOp(c, w, "undo")
}

func (s *Service) redoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	s.historyOp(c, w, "redo")
}

func (s *Service) historyOp(c web.C, w http.ResponseWriter, op string) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	var frames []int
	var labelsChanged bool
	var err error
	if op == "undo" {
		frames, labelsChanged, err = sess.Undo()
	} else {
		frames, labelsChanged, err = sess.Redo()
	}
	if err != nil {
		respondError(w, err)
		return
	}
	s.publish(sess, op, frames, 0)
	payload, err := newEditPayload(sess, frames, labelsChanged)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, payload)
}

func (s *Service) viewHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	var v session.View
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		respondStatus(w, http.StatusBadRequest, fmt.Errorf("bad view body: %v", err))
		return
	}
	if err := sess.SetView(v); err != nil {
		respondStatus(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// selectHandler picks a label for the next two-label action and reports
// the resulting selection state.
func (s *Service) selectHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	var req struct {
		Label int32 `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, fmt.Errorf("bad select body: %v", err))
		return
	}
	m := sess.Select(req.Label)
	respondJSON(w, map[string]string{"mode": m.String()})
}

func (s *Service) clearSelectHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	sess.ClearSelection()
	respondJSON(w, map[string]string{"mode": sess.Mode().String()})
}

func (s *Service) rawHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	frame, err := strconv.Atoi(c.URLParams["frame"])
	if err != nil {
		respondStatus(w, http.StatusBadRequest, fmt.Errorf("bad frame %q", c.URLParams["frame"]))
		return
	}
	channel := queryInt(r, "channel", sess.CurrentView().Channel)
	data, err := s.render.rawPNG(sess, frame, channel)
	if err != nil {
		respondStatus(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Service) labeledHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	frame, err := strconv.Atoi(c.URLParams["frame"])
	if err != nil {
		respondStatus(w, http.StatusBadRequest, fmt.Errorf("bad frame %q", c.URLParams["frame"]))
		return
	}
	feature := queryInt(r, "feature", sess.CurrentView().Feature)
	highlight := int32(queryInt(r, "highlight", 0))
	data, err := s.render.labelPNG(sess, frame, feature, highlight)
	if err != nil {
		respondStatus(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// downloadHandler exports the session in its native container format and
// marks it saved.
func (s *Service) downloadHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	var buf bytes.Buffer
	var filename string
	if sess.Tracking {
		filename = exportName(sess.Name, ".trk")
		err := format.WriteTrk(&buf, sess.Raw(), sess.Volume(), sess.Index().Lineage())
		if err != nil {
			respondError(w, err)
			return
		}
	} else {
		filename = exportName(sess.Name, ".npz")
		if err := format.WriteNpz(&buf, sess.Raw(), sess.Volume()); err != nil {
			respondError(w, err)
			return
		}
	}
	sess.MarkSaved()
	s.publish(sess, "download", nil, 0)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

// exportHandler writes the session's container to blob storage.  The body
// may name a bucket and key; both default from config and the session name.
func (s *Service) exportHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sess := s.session(c, w)
	if sess == nil {
		return
	}
	var req struct {
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondStatus(w, http.StatusBadRequest, fmt.Errorf("bad request body: %v", err))
			return
		}
	}
	if req.Bucket == "" {
		req.Bucket = s.config.Bucket.URL
	}
	if req.Bucket == "" {
		respondStatus(w, http.StatusBadRequest, fmt.Errorf("no bucket named and none configured"))
		return
	}

	var buf bytes.Buffer
	var err error
	if sess.Tracking {
		if req.Key == "" {
			req.Key = exportName(sess.Name, ".trk")
		}
		err = format.WriteTrk(&buf, sess.Raw(), sess.Volume(), sess.Index().Lineage())
	} else {
		if req.Key == "" {
			req.Key = exportName(sess.Name, ".npz")
		}
		err = format.WriteNpz(&buf, sess.Raw(), sess.Volume())
	}
	if err != nil {
		respondError(w, err)
		return
	}
	if err := storage.WriteObject(r.Context(), req.Bucket, req.Key, buf.Bytes()); err != nil {
		respondError(w, err)
		return
	}
	sess.MarkSaved()
	s.publish(sess, "export", nil, 0)
	respondJSON(w, map[string]string{"bucket": req.Bucket, "key": req.Key})
}

func exportName(name, ext string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name + ext
}

func (s *Service) publish(sess *session.Session, action string, frames []int, elapsed time.Duration) {
	s.activity.Publish(storage.Event{
		Session: sess.Token,
		Project: sess.Name,
		Action:  action,
		Frames:  frames,
		Elapsed: elapsed.Milliseconds(),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ---- responses ----

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		celled.Errorf("encoding response: %v\n", err)
	}
}

func respondStatus(w http.ResponseWriter, status int, err error) {
	celled.Debugf("request failed (%d): %v\n", status, err)
	http.Error(w, err.Error(), status)
}

// respondError maps domain errors to HTTP statuses: argument problems are
// the client's fault, lineage inconsistencies are unprocessable, the rest
// is on us.
func respondError(w http.ResponseWriter, err error) {
	var invalidArgs edit.InvalidArgsError
	var inconsistent labels.InconsistentLineageError
	switch {
	case errors.As(err, &invalidArgs), errors.Is(err, edit.ErrInvalidAction):
		respondStatus(w, http.StatusBadRequest, err)
	case errors.As(err, &inconsistent):
		respondStatus(w, http.StatusUnprocessableEntity, err)
	default:
		celled.Errorf("internal error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
