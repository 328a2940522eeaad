package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

type CampaignHandler struct {
	service domain.CampaignService
	logger  logger.Logger
}

func NewCampaignHandler(service domain.CampaignService, logger logger.Logger) *CampaignHandler {
	return &CampaignHandler{
		service: service,
		logger:  logger,
	}
}

func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux) {
	// Register RPC-style endpoints with dot notation
	mux.HandleFunc("/api/campaigns.create", h.handleCreate)
	mux.HandleFunc("/api/campaigns.get", h.handleGet)
	mux.HandleFunc("/api/campaigns.list", h.handleList)
	mux.HandleFunc("/api/campaigns.pause", h.handlePause)
	mux.HandleFunc("/api/campaigns.resume", h.handleResume)
	mux.HandleFunc("/api/campaigns.cancel", h.handleCancel)
}

func (h *CampaignHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	campaign, err := h.service.CreateCampaign(r.Context(), &req)
	if err != nil {
		if !domain.IsValidationError(err) && !domain.IsIngestionError(err) {
			h.logger.WithField("error", err.Error()).Error("Failed to create campaign")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"campaign": campaign})
}

func (h *CampaignHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.GetCampaignRequest
	if err := req.FromURLParams(r.URL.Query()); err != nil {
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), req.ID)
	if err != nil {
		if !domain.IsNotFound(err) {
			h.logger.WithField("error", err.Error()).Error("Failed to get campaign")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"campaign": campaign})
}

func (h *CampaignHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params domain.ListCampaignsParams
	if err := params.FromURLParams(r.URL.Query()); err != nil {
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.service.ListCampaigns(r.Context(), params)
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to list campaigns")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *CampaignHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.handleControl(w, r, "pause", h.service.PauseCampaign)
}

func (h *CampaignHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.handleControl(w, r, "resume", h.service.ResumeCampaign)
}

func (h *CampaignHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleControl(w, r, "cancel", h.service.CancelCampaign)
}

// handleControl is the shared body of the pause, resume and cancel endpoints
func (h *CampaignHandler) handleControl(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, id string) error) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.CampaignControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := fn(r.Context(), req.ID); err != nil {
		if !domain.IsNotFound(err) && !domain.IsInvalidState(err) {
			h.logger.WithFields(map[string]interface{}{
				"campaign_id": req.ID,
				"action":      action,
				"error":       err.Error(),
			}).Error("Campaign control action failed")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
