package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatkit-ai/chatkit/internal/chat"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// createSessionRequest is the body for POST /session.
type createSessionRequest struct {
	Location types.Location `json:"location"`
}

// sessionResponse summarizes a live session.
type sessionResponse struct {
	SessionID    string         `json:"sessionId"`
	Location     types.Location `json:"location"`
	Title        string         `json:"title"`
	CreationDate int64          `json:"creationDate"`
	IsNew        bool           `json:"isNew"`
}

func sessionToResponse(sess *chat.Session) sessionResponse {
	return sessionResponse{
		SessionID:    sess.ID(),
		Location:     sess.Location(),
		Title:        sess.Title(),
		CreationDate: sess.CreationDate().UnixMilli(),
		IsNew:        sess.IsNew(),
	}
}

// createSession handles POST /session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Location == "" {
		req.Location = types.LocationPanel
	}
	if !req.Location.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown location")
		return
	}

	sess := s.orchestrator.StartSession(r.Context(), req.Location)
	writeJSON(w, http.StatusCreated, sessionToResponse(sess))
}

// listSessions handles GET /session: the history listing.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	history, err := s.orchestrator.GetHistory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if history == nil {
		history = []chat.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, history)
}

// getSession handles GET /session/{sessionID}, restoring from storage
// when the session is not live.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.orchestrator.GetOrRestoreSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}

	ser, err := sess.ToSerializable()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ser)
}

// updateSessionRequest is the body for PATCH /session/{sessionID}.
type updateSessionRequest struct {
	Title string `json:"title"`
}

// updateSession handles PATCH /session/{sessionID}.
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	sess, ok := s.orchestrator.GetSession(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	if req.Title != "" {
		sess.SetCustomTitle(req.Title)
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

// deleteSession handles DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.orchestrator.RemoveHistoryEntry(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// clearAllSessions handles DELETE /session.
func (s *Server) clearAllSessions(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.ClearAllHistoryEntries(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// abortSession handles POST /session/{sessionID}/abort.
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	canceled := s.orchestrator.CancelCurrentRequestForSession(sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

// listAgents handles GET /agent.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	type agentInfo struct {
		ID          string           `json:"id"`
		Name        string           `json:"name"`
		Description string           `json:"description,omitempty"`
		Locations   []types.Location `json:"locations,omitempty"`
		IsDefault   bool             `json:"isDefault,omitempty"`
		Commands    []string         `json:"commands,omitempty"`
	}

	out := []agentInfo{}
	for _, a := range s.registry.List() {
		info := agentInfo{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Locations:   a.Locations,
			IsDefault:   a.IsDefault,
		}
		for _, c := range a.Commands {
			info.Commands = append(info.Commands, c.Name)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func httpStatusForOrchestratorError(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrUnknownSession):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, chat.ErrCannotHandle):
		return http.StatusUnprocessableEntity, ErrCodeInvalidRequest
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}
