package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/underwriter/internal/document"
	"github.com/hyperjump/underwriter/internal/workbench"
	"go.uber.org/zap"
)

// indexData is the template input for the main page.
type indexData struct {
	workbench.View
	ScrollTo   int
	Extensions []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.wb.Refresh()
	data := indexData{
		View:       s.wb.View(),
		ScrollTo:   int(s.scrollTo.Swap(0)),
		Extensions: s.extensions,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("render index failed", zap.Error(err))
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid form")
		return
	}
	s.store.SetClaimText(r.PostForm.Get("claim"))
	s.redirectHome(w, r)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid form")
		return
	}
	if r.PostForm.Has("claim") {
		s.store.SetClaimText(r.PostForm.Get("claim"))
	}
	// The outcome is reported through the session status.
	if err := s.store.Analyze(detach(r)); err != nil {
		s.logger.Debug("analyze request finished with error", zap.Error(err))
	}
	s.wb.Refresh()
	s.redirectHome(w, r)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	name := filepath.Base(header.Filename)
	if !document.MatchExtension(name, s.extensions) {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	s.logger.Debug("upload request", zap.String("filename", name), zap.Int("bytes", len(data)))
	if err := s.store.Upload(detach(r), name, data); err != nil {
		s.logger.Debug("upload request finished with error", zap.Error(err))
	}
	s.wb.Refresh()
	s.redirectHome(w, r)
}

func (s *Server) handleSelectCitation(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || !s.wb.SelectCitation(index) {
		s.respondError(w, http.StatusNotFound, "citation not found")
		return
	}
	s.redirectHome(w, r)
}

func (s *Server) handleRefreshPolicies(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RefreshPolicies(r.Context()); err != nil {
		s.logger.Debug("policy refresh failed", zap.Error(err))
	}
	s.redirectHome(w, r)
}

func (s *Server) handleViewerPrev(w http.ResponseWriter, r *http.Request) {
	s.wb.Prev()
	s.redirectHome(w, r)
}

func (s *Server) handleViewerNext(w http.ResponseWriter, r *http.Request) {
	s.wb.Next()
	s.redirectHome(w, r)
}

func (s *Server) handleViewerMode(w http.ResponseWriter, r *http.Request) {
	s.wb.ToggleMode()
	s.redirectHome(w, r)
}

// stateResponse is the JSON form of the session for scripts and tests.
type stateResponse struct {
	ClaimText    string      `json:"claim_text"`
	Status       string      `json:"status"`
	Notification string      `json:"notification,omitempty"`
	Uploading    bool        `json:"uploading"`
	Analyzing    bool        `json:"analyzing"`
	Decision     string      `json:"decision,omitempty"`
	RiskLevel    string      `json:"risk_level,omitempty"`
	Citations    int         `json:"citations"`
	Selected     string      `json:"selected_quote,omitempty"`
	Policies     []string    `json:"policies"`
	Document     string      `json:"document,omitempty"`
	Phase        string      `json:"viewer_phase"`
	Mode         string      `json:"viewer_mode"`
	Page         int         `json:"page"`
	NumPages     int         `json:"num_pages"`
	Matches      map[int]int `json:"matches_by_page,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.wb.Refresh()
	v := s.wb.View()
	resp := stateResponse{
		ClaimText:    v.State.ClaimText,
		Status:       v.State.Status,
		Notification: v.State.Notification,
		Uploading:    v.State.Uploading,
		Analyzing:    v.State.Analyzing,
		Selected:     v.Quote,
		Policies:     make([]string, 0, len(v.Policies.Items)),
		Document:     v.Viewer.Source,
		Phase:        v.Viewer.Phase.String(),
		Mode:         v.Viewer.Mode.String(),
		Page:         v.Viewer.Page,
		NumPages:     v.Viewer.NumPages,
		Matches:      s.wb.Matches(),
	}
	if v.State.Analysis != nil {
		resp.Decision = v.State.Analysis.Decision
		resp.RiskLevel = v.State.Analysis.RiskLevel
		resp.Citations = len(v.State.Analysis.Citations)
	}
	for _, p := range v.Policies.Items {
		resp.Policies = append(resp.Policies, p.PolicyID)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	// Existing files are not uploaded unless asked for.
	syncExisting := req.Sync != nil && *req.Sync
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// detach keeps backend calls running when the browser navigates away.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
