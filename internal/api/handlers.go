package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apierrors "github.com/vitaliisemenov/pagewatch/internal/api/errors"
	"github.com/vitaliisemenov/pagewatch/internal/api/middleware"
	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent"
	"github.com/vitaliisemenov/pagewatch/internal/pipeline"
	"github.com/vitaliisemenov/pagewatch/internal/supervisor"
)

// Handlers binds the Command/Query API's HTTP surface to the engine's
// core components. It holds no state of its own beyond these references,
// matching spec.md §4.7's framing of the API as a thin transport over the
// Watch Supervisor, Cycle Pipeline, and Activity Log.
type Handlers struct {
	Supervisor *supervisor.Supervisor
	Pipeline   *pipeline.Pipeline
	Log        *activitylog.Log
	Agent      pageagent.Agent
	Logger     *slog.Logger

	// Ready reports whether the engine has finished its startup sequence
	// (restore_from_store completed); nil means always-ready.
	Ready func() bool
}

// startTargetResponse is start_target's success shape (§4.7).
type startTargetResponse struct {
	Success  bool            `json:"success"`
	TargetID domain.TargetId `json:"target_id"`
}

// StartTarget handles POST /targets.
func (h *Handlers) StartTarget(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req domain.StartTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.Write(w, requestID, domain.New(domain.CodeInvalidPageURL, "malformed request body"))
		return
	}

	id, err := h.Supervisor.StartTarget(r.Context(), req)
	if err != nil {
		apierrors.Write(w, requestID, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusCreated, startTargetResponse{Success: true, TargetID: id})
}

// StopTarget handles DELETE /targets/{id}.
func (h *Handlers) StopTarget(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := domain.TargetId(mux.Vars(r)["id"])

	if err := h.Supervisor.StopTarget(r.Context(), id); err != nil {
		apierrors.Write(w, requestID, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// statusResponse is status(target_id)'s success shape (§4.7).
type statusResponse struct {
	Success   bool          `json:"success"`
	IsRunning bool          `json:"is_running"`
	Config    domain.Target `json:"config"`
}

// Status handles GET /targets/{id}.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := domain.TargetId(mux.Vars(r)["id"])

	result, err := h.Supervisor.Status(id)
	if err != nil {
		apierrors.Write(w, requestID, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, statusResponse{Success: true, IsRunning: result.IsRunning, Config: result.Config})
}

// StatusAll handles GET /targets.
func (h *Handlers) StatusAll(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"target_ids": h.Supervisor.StatusAll(),
	})
}

// sendNowRequest is send_now's parameter shape (§6): an existing
// target_id, or an ad-hoc page_ref+selector+content_mode.
type sendNowRequest struct {
	TargetID        string             `json:"target_id,omitempty"`
	PageRef         string             `json:"page_ref,omitempty"`
	Selector        string             `json:"selector"`
	ContentMode     domain.ContentMode `json:"content_mode"`
	WebhookOverride string             `json:"webhook_override,omitempty"`
}

// SendNow handles POST /send_now: a one-off dispatch bypassing change
// detection, used by the "Send Now" UI action (§4.7).
func (h *Handlers) SendNow(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req sendNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.Write(w, requestID, domain.New(domain.CodeInvalidPageURL, "malformed request body"))
		return
	}

	sendReq := pipeline.SendNowRequest{
		PageRef:         req.PageRef,
		Selector:        req.Selector,
		ContentMode:     req.ContentMode,
		WebhookOverride: req.WebhookOverride,
	}

	if req.TargetID != "" {
		status, err := h.Supervisor.Status(domain.TargetId(req.TargetID))
		if err != nil {
			apierrors.Write(w, requestID, err)
			return
		}
		sendReq.PageRef = status.Config.PageRef
		sendReq.PageURL = status.Config.InitialURL
		sendReq.TargetWebhook = status.Config.WebhookOverride
		if req.Selector == "" {
			sendReq.Selector = status.Config.Selector
		}
		if req.ContentMode == "" {
			sendReq.ContentMode = status.Config.ContentMode
		}
	} else if h.Agent != nil {
		if url, err := h.Agent.CurrentURL(r.Context(), req.PageRef); err == nil {
			sendReq.PageURL = url
		}
	}

	result, err := h.Pipeline.SendNow(r.Context(), sendReq)
	if err != nil {
		apierrors.Write(w, requestID, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"status_code": result.StatusCode,
	})
}

// GetActivityLog handles GET /activity_log.
func (h *Handlers) GetActivityLog(w http.ResponseWriter, r *http.Request) {
	q := domain.LogQuery{
		TargetId: domain.TargetId(r.URL.Query().Get("target_id")),
		Level:    domain.LogLevel(r.URL.Query().Get("level")),
		Category: domain.LogCategory(r.URL.Query().Get("category")),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			q.Limit = limit
		}
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": h.Log.Query(q),
	})
}

// ClearActivityLog handles DELETE /activity_log.
func (h *Handlers) ClearActivityLog(w http.ResponseWriter, r *http.Request) {
	h.Supervisor.ClearActivityLog(r.Context())
	apierrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Healthz handles GET /healthz: process liveness, no dependency checks.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz: whether restore_from_store has completed.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil && !h.Ready() {
		apierrors.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
