package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/isdmx/execbox/execution"
)

const msgTooManyRequests = "Too many requests"

type executeCodeRequest struct {
	Code     string  `json:"code"`
	Language *string `json:"language"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, execution.ErrorEnvelope{Error: msg})
}

var errTrailingData = errors.New("request body must contain a single JSON value")

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}
