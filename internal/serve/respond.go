package serve

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	domainerr "kotoba/internal/domain/errors"
	"kotoba/internal/store"
)

const maxJSONBody = 2 << 20

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps store and validation errors onto status codes. Anything
// unknown is logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve domainerr.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: ve.Fields()})
	case errors.Is(err, domainerr.ErrInvalid):
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrCategoryInUse):
		writeErrorMsg(w, http.StatusConflict, "category has posts")
	case errors.Is(err, store.ErrConflict):
		writeErrorMsg(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a single JSON value into v. Unknown fields are ignored.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var ve domainerr.ValidationError
		ve.Add("body", "invalid JSON")
		return ve
	}
	return nil
}
