package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatkit-ai/chatkit/internal/chat"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// sendMessageRequest is the body for POST /session/{sessionID}/message.
type sendMessageRequest struct {
	Text string `json:"text"`

	// Agent and Command override the parsed @mention and /command.
	Agent   string `json:"agent,omitempty"`
	Command string `json:"command,omitempty"`

	Variables         types.VariableData `json:"variables,omitempty"`
	ModelID           string             `json:"modelId,omitempty"`
	DetectionDisabled bool               `json:"detectionDisabled,omitempty"`
	// Wait blocks the handler until the response is terminal instead
	// of returning as soon as dispatch starts.
	Wait bool `json:"wait,omitempty"`
}

// sendMessageResponse acknowledges a dispatched request. Progress is
// streamed separately over /event.
type sendMessageResponse struct {
	RequestID string `json:"requestId"`
	Agent     string `json:"agent,omitempty"`
	Command   string `json:"command,omitempty"`
	Complete  bool   `json:"complete"`
}

// sendMessage handles POST /session/{sessionID}/message.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	outcome, err := s.orchestrator.SendRequest(r.Context(), sessionID, req.Text, chat.SendOptions{
		AgentID:           req.Agent,
		Command:           req.Command,
		Variables:         req.Variables,
		ModelID:           req.ModelID,
		DetectionDisabled: req.DetectionDisabled,
	})
	if err != nil {
		status, code := httpStatusForOrchestratorError(err)
		writeError(w, status, code, err.Error())
		return
	}
	if outcome == nil {
		// Either empty input or the session is busy; both are no-ops.
		if s.orchestrator.HasPending(sessionID) {
			writeError(w, http.StatusConflict, ErrCodeSessionBusy, "a request is already in flight for this session")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "empty request ignored")
		return
	}

	if req.Wait {
		select {
		case <-outcome.ResponseComplete():
		case <-r.Context().Done():
			return
		}
	}

	resp := sendMessageResponse{
		RequestID: outcome.Request.ID,
		Command:   outcome.Command,
		Complete:  outcome.Request.Response.Complete,
	}
	if outcome.Agent != nil {
		resp.Agent = outcome.Agent.ID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// removeRequest handles DELETE /session/{sessionID}/message/{requestID}.
func (s *Server) removeRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	requestID := chi.URLParam(r, "requestID")

	reason := chat.RemovalReason(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = chat.RemovalReasonUndo
	}

	if err := s.orchestrator.RemoveRequest(sessionID, requestID, reason); err != nil {
		status, code := httpStatusForOrchestratorError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeSuccess(w)
}

// resendRequest handles POST /session/{sessionID}/message/{requestID}/resend.
func (s *Server) resendRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	requestID := chi.URLParam(r, "requestID")

	sess, ok := s.orchestrator.GetSession(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	req, found := sess.GetRequest(requestID)
	if !found {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "request not found")
		return
	}

	outcome, err := s.orchestrator.ResendRequest(r.Context(), req, chat.SendOptions{})
	if err != nil {
		status, code := httpStatusForOrchestratorError(err)
		writeError(w, status, code, err.Error())
		return
	}
	if outcome == nil {
		writeError(w, http.StatusConflict, ErrCodeSessionBusy, "resend could not be dispatched")
		return
	}

	resp := sendMessageResponse{RequestID: outcome.Request.ID, Command: outcome.Command}
	if outcome.Agent != nil {
		resp.Agent = outcome.Agent.ID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// createTransferRequest is the body for POST /transfer.
type createTransferRequest struct {
	SessionID   string    `json:"sessionId"`
	ToWorkspace types.URI `json:"toWorkspace"`
	InputValue  string    `json:"inputValue,omitempty"`
	Mode        string    `json:"mode,omitempty"`
}

// createTransfer handles POST /transfer.
func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	err := s.orchestrator.TransferSession(r.Context(), req.SessionID, req.ToWorkspace, req.InputValue, req.Mode)
	if err != nil {
		status, code := httpStatusForOrchestratorError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeSuccess(w)
}

// claimTransferRequest is the body for POST /transfer/claim.
type claimTransferRequest struct {
	Workspace types.URI `json:"workspace"`
}

// claimTransfer handles POST /transfer/claim. Responds 404 when no
// unexpired transfer is waiting for the workspace.
func (s *Server) claimTransfer(w http.ResponseWriter, r *http.Request) {
	var req claimTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	rec, err := s.orchestrator.ClaimTransfer(r.Context(), req.Workspace)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no transfer waiting for this workspace")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
