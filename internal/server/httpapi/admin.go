package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type grantRoleRequest struct {
	Role string `json:"role" validate:"required,max=64"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceErr(w, err)
		return
	}
	if err := h.admin.GrantRole(r.Context(), chi.URLParam(r, "id"), req.Role); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeOK(w)
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.RevokeRole(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "role")); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeOK(w)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeOK(w)
}
