package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/staffdesk/internal/portal"
)

func handleListVacations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list := deps.Portal.VacationRequests(portal.VacationFilter{
			EmployeeID: q.Get("employeeId"),
			Status:     portal.VacationStatus(q.Get("status")),
		})
		writeJSON(w, http.StatusOK, page(r, list))
	}
}

func handleGetVacation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := deps.Portal.VacationRequest(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func handleAddVacation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in portal.NewVacationRequest
		if !decodeBody(w, r, &in) {
			return
		}
		created, err := deps.Portal.AddVacationRequest(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleUpdateVacation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u portal.VacationUpdate
		if !decodeBody(w, r, &u) {
			return
		}
		updated, err := deps.Portal.UpdateVacationRequest(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

type decisionRequest struct {
	ApprovedBy string `json:"approvedBy"`
	Comments   string `json:"comments"`
}

func handleDecideVacation(deps Deps, approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d decisionRequest
		if !decodeBody(w, r, &d) {
			return
		}
		if d.ApprovedBy == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "approvedBy is required")
			return
		}

		decide := deps.Portal.Reject
		if approve {
			decide = deps.Portal.Approve
		}
		updated, err := decide(r.Context(), chi.URLParam(r, "id"), d.ApprovedBy, d.Comments)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleListObjectives(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list := deps.Portal.Objectives(portal.ObjectiveFilter{
			EmployeeID: q.Get("employeeId"),
			ManagerID:  q.Get("managerId"),
			Status:     portal.ObjectiveStatus(q.Get("status")),
		})
		writeJSON(w, http.StatusOK, page(r, list))
	}
}

func handleAddObjective(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in portal.NewObjective
		if !decodeBody(w, r, &in) {
			return
		}
		created, err := deps.Portal.AddObjective(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleUpdateObjective(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u portal.ObjectiveUpdate
		if !decodeBody(w, r, &u) {
			return
		}
		updated, err := deps.Portal.UpdateObjective(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}
