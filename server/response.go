package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/topclients/logger"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON sends v with status. Encoding failures happen after the header
// is out, so they can only be logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugw("Failed to encode response", logger.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeInternalError logs err under msg and answers with the bare status
// text. Store errors never reach the client.
func writeInternalError(w http.ResponseWriter, log *zap.SugaredLogger, err error, msg string) {
	log.Errorw(msg, logger.FieldError, err)
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// requireMethod answers 405 with an Allow header unless r uses one of methods.
func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
