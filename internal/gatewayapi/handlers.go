package gatewayapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"forgeline/internal/blueprint"
	"forgeline/internal/store"
)

// NewMux builds the gateway's HTTP surface.
func NewMux(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/runs", svc.handleStartRun)
	mux.HandleFunc("/v1/chat", svc.handleChat)
	mux.HandleFunc("/v1/files", svc.handleFiles)
	mux.HandleFunc("/v1/messages", svc.handleMessages)
	mux.HandleFunc("/ws/runs", svc.handleRunWS)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return cors(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type startRunRequest struct {
	ProjectID string               `json:"projectId"`
	Blueprint *blueprint.Blueprint `json:"blueprint,omitempty"`
}

func (s *Service) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID, err := s.StartRun(r.Context(), strings.TrimSpace(req.ProjectID), req.Blueprint)
	if err != nil {
		var cyc *blueprint.CyclicDependencyError
		if errors.As(err, &cyc) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

type chatRequest struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message"`
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.Chat(r.Context(), strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleFiles serves a project's promoted file set; build pins a version,
// default is the latest promoted one.
func (s *Service) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, errors.New("project_id is required"))
		return
	}
	var (
		files   map[string]string
		buildID int64
		err     error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("build")); raw != "" {
		buildID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("build must be an integer"))
			return
		}
		files, err = s.Store.Files(r.Context(), projectID, buildID)
	} else {
		files, buildID, err = s.Store.LatestFiles(r.Context(), projectID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buildId": buildID, "files": files})
}

func (s *Service) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, errors.New("project_id is required"))
		return
	}
	msgs, err := s.Store.Messages(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
