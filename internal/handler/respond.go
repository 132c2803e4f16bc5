package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/airlink/internal/tour"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(kind tour.Kind) int {
	switch kind {
	case tour.KindLicenseNotFound, tour.KindSessionNotFound, tour.KindListenerNotFound:
		return http.StatusNotFound
	case tour.KindLicenseUsed, tour.KindLicenseNotActive, tour.KindSessionFull:
		return http.StatusConflict
	case tour.KindLicenseExpired, tour.KindSessionExpired:
		return http.StatusGone
	case tour.KindInvalidMaxListeners:
		return http.StatusBadRequest
	case tour.KindPINGenerationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports a domain error by kind. Anything else is logged and
// returned as db_error.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := tour.KindOf(err)
	if kind == "" || kind == tour.KindDBError {
		logger.Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, string(tour.KindDBError))
		return
	}
	writeMessage(w, statusFor(kind), string(kind))
}
