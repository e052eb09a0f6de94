package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rtaiello/let-them-drop/protocol"
)

// statusForError maps protocol sentinel errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, protocol.ErrDuplicateContribution), errors.Is(err, protocol.ErrDuplicateClient):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrRoundClosed):
		return http.StatusGone
	case errors.Is(err, protocol.ErrMalformedValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, protocol.ErrUnknownCommitteeMember), errors.Is(err, protocol.ErrShareNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
