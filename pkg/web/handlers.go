package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/preview"
	"github.com/goliatone/go-reportbuilder/pkg/state"
	"github.com/goliatone/go-reportbuilder/pkg/workflow"
)

// fieldPrefix namespaces placeholder inputs in the page form.
const fieldPrefix = "r:"

// StateView is the JSON shape of a working state.
type StateView struct {
	Ready        bool              `json:"ready"`
	SlideNumber  int               `json:"slide_number,omitempty"`
	SlideText    string            `json:"slide_text"`
	Preview      string            `json:"preview"`
	Keys         []string          `json:"keys"`
	Unresolved   []string          `json:"unresolved,omitempty"`
	Replacements map[string]string `json:"replacements"`
	Loading      bool              `json:"loading"`
	Error        string            `json:"error,omitempty"`
	Success      string            `json:"success,omitempty"`
}

// NewStateView converts a snapshot for the wire.
func NewStateView(snap state.WorkingState) StateView {
	v := StateView{
		Ready:        snap.Ready(),
		SlideText:    snap.SlideText,
		Preview:      preview.Substitute(snap.SlideText, snap.Replacements),
		Keys:         snap.Keys(),
		Unresolved:   preview.Unresolved(snap.SlideText, snap.Replacements),
		Replacements: snap.Replacements,
		Loading:      snap.Loading,
		Error:        snap.Error,
		Success:      snap.Success,
	}
	if snap.Config != nil {
		v.SlideNumber = snap.Config.SlideNumber
	}
	if v.Keys == nil {
		v.Keys = []string{}
	}
	if v.Replacements == nil {
		v.Replacements = map[string]string{}
	}
	return v
}

type field struct {
	Key        string
	Name       string
	Value      string
	Unresolved bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()

	missing := make(map[string]bool)
	for _, key := range preview.Unresolved(snap.SlideText, snap.Replacements) {
		missing[key] = true
	}
	fields := make([]field, 0, len(snap.Replacements))
	for _, key := range snap.Keys() {
		fields = append(fields, field{
			Key:        key,
			Name:       fieldPrefix + key,
			Value:      snap.Replacements[key],
			Unresolved: missing[key],
		})
	}

	var svg bytes.Buffer
	if snap.Ready() {
		if err := s.renderPreview(&svg, snap); err != nil {
			s.logger.Warn("render preview", zap.Error(err))
			svg.Reset()
		}
	}

	download := ""
	if token := r.URL.Query().Get("download"); token != "" && validToken(token) && s.downloads.Pending(token) {
		download = "/downloads/" + token
	}

	var palette string
	if sel, err := s.themes.Select(s.themeName, s.variant); err == nil {
		palette = cssVarsStyle(RendererConfig(sel).CSSVars)
	} else {
		s.logger.Warn("select theme", zap.String("theme", s.themeName), zap.Error(err))
	}

	ctx := pongo2.Context{
		"title":       s.title,
		"palette":     palette,
		"state":       snap,
		"ready":       snap.Ready(),
		"slide_text":  snap.SlideText,
		"fields":      fields,
		"preview_svg": preview.SanitizeSVG(svg.String()),
		"download":    download,
	}
	if snap.Config != nil {
		ctx["slide_number"] = snap.Config.SlideNumber
	}

	var buf bytes.Buffer
	if err := s.page.ExecuteWriter(ctx, &buf); err != nil {
		s.logger.Error("render page", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleReplacements(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// applyForm copies posted placeholder inputs into the session. Inputs for
// keys the session does not know are ignored.
func (s *Server) applyForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	if len(r.PostForm) == 0 {
		return nil
	}
	snap := s.session.Snapshot()
	for _, key := range snap.Keys() {
		values, ok := r.PostForm[fieldPrefix+key]
		if !ok || len(values) == 0 {
			continue
		}
		if err := s.session.SetReplacement(key, values[0]); err != nil {
			s.logger.Warn("apply replacement", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

type replacementRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleAPIReplacement(w http.ResponseWriter, r *http.Request) {
	var req replacementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.session.SetReplacement(req.Key, req.Value); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, state.ErrUnknownPlaceholder) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, NewStateView(s.session.Snapshot()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.session.LoadConfig(r.Context())
	if err != nil && !errors.Is(err, workflow.ErrSuperseded) {
		s.logger.Debug("reset finished with error", zap.Error(err))
	}
	if wantsJSON(r) {
		status := http.StatusOK
		if err != nil && !errors.Is(err, workflow.ErrSuperseded) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, NewStateView(s.session.Snapshot()))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type generateResponse struct {
	Download string    `json:"download,omitempty"`
	Filename string    `json:"filename,omitempty"`
	State    StateView `json:"state"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ctx, receipt := WithReceipt(r.Context())
	a, err := s.session.GenerateReport(ctx)
	token := receipt.Token()

	if wantsJSON(r) {
		resp := generateResponse{State: NewStateView(s.session.Snapshot())}
		status := http.StatusOK
		switch {
		case errors.Is(err, workflow.ErrNotLoaded), errors.Is(err, workflow.ErrSuperseded):
			status = http.StatusConflict
		case err != nil:
			status = http.StatusBadGateway
		default:
			resp.Filename = a.Filename
			if token != "" {
				resp.Download = "/downloads/" + token
			}
		}
		writeJSON(w, status, resp)
		return
	}

	target := "/"
	if err == nil && token != "" {
		target = "/?download=" + url.QueryEscape(token)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !validToken(token) {
		http.NotFound(w, r)
		return
	}
	a, ok := s.downloads.Take(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(a.Data)
	s.logger.Info("artifact downloaded", zap.String("filename", a.Filename), zap.Int("bytes", len(a.Data)))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if !snap.Ready() {
		http.Error(w, "configuration not loaded", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := s.renderPreview(&buf, snap); err != nil {
		s.logger.Error("render preview", zap.Error(err))
		http.Error(w, "failed to render preview", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) renderPreview(buf *bytes.Buffer, snap state.WorkingState) error {
	opts := s.preview
	if opts.Title == "" && snap.Config != nil {
		opts.Title = fmt.Sprintf("Slide %d", snap.Config.SlideNumber)
	}
	return preview.SVG(buf, preview.Substitute(snap.SlideText, snap.Replacements), opts)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewStateView(s.session.Snapshot()))
}

type healthView struct {
	Status    string `json:"status"`
	Backend   string `json:"backend,omitempty"`
	Error     string `json:"error,omitempty"`
	Downloads int    `json:"pending_downloads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	view := healthView{Status: "ok", Downloads: s.downloads.Len()}
	if s.health == nil {
		writeJSON(w, http.StatusOK, view)
		return
	}
	if err := s.health(r.Context()); err != nil {
		s.logger.Warn("backend health check failed", zap.Error(err))
		view.Status = "unavailable"
		view.Backend = "unhealthy"
		view.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, view)
		return
	}
	view.Backend = "healthy"
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func validToken(token string) bool {
	_, err := uuid.Parse(token)
	return err == nil
}
