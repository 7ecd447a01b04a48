package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
)

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	// SecondFactor names the missing factor when a password was accepted.
	SecondFactor string `json:"second_factor,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func writeErr(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

// writeServiceErr maps the error taxonomy to a status. Anything unknown is
// reported as a bare internal error; details stay in the server log.
func writeServiceErr(w http.ResponseWriter, err error) {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: common.ErrValidation.Error(), Fields: verr.Fields})
	case errors.Is(err, common.ErrValidation):
		writeErr(w, http.StatusBadRequest, common.ErrValidation.Error())
	case errors.Is(err, common.ErrInvalidOrExpired):
		writeErr(w, http.StatusBadRequest, common.ErrInvalidOrExpired.Error())
	case errors.Is(err, common.ErrSecondFactorRequired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: common.ErrSecondFactorRequired.Error(), SecondFactor: "totp"})
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrInvalidToken):
		writeErr(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
	case errors.Is(err, common.ErrForbidden):
		writeErr(w, http.StatusForbidden, common.ErrForbidden.Error())
	case errors.Is(err, common.ErrNotFound):
		writeErr(w, http.StatusNotFound, common.ErrNotFound.Error())
	case errors.Is(err, common.ErrConflict):
		writeErr(w, http.StatusConflict, common.ErrConflict.Error())
	default:
		writeErr(w, http.StatusInternalServerError, common.ErrInternal.Error())
	}
}
