package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/tour"
)

type LicenseHandler struct {
	ledger *tour.Ledger
	logger *slog.Logger
}

func NewLicenseHandler(ledger *tour.Ledger, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{ledger: ledger, logger: logger}
}

type activateRequest struct {
	Code string `json:"code"`
}

type licenseResponse struct {
	License          *model.License `json:"license"`
	RemainingMinutes int            `json:"remaining_minutes"`
}

// Activate handles POST /api/licenses/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeMessage(w, http.StatusBadRequest, "code is required")
		return
	}

	lic, remaining, err := h.ledger.Activate(r.Context(), req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, licenseResponse{License: lic, RemainingMinutes: remaining})
}

// Revoke handles POST /api/licenses/{id}/revoke
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	lic, err := h.ledger.Revoke(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

// Reactivate handles POST /api/licenses/{id}/reactivate
func (h *LicenseHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	lic, err := h.ledger.Reactivate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}
