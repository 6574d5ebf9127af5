package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/staffdesk/internal/survey"
)

func handleListSurveys(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Surveys.Surveys(survey.SurveyFilter{Status: survey.Status(r.URL.Query().Get("status"))})
		writeJSON(w, http.StatusOK, page(r, list))
	}
}

func handleGetSurvey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, err := deps.Surveys.Survey(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sv)
	}
}

func handleAddSurvey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in survey.NewSurvey
		if !decodeBody(w, r, &in) {
			return
		}
		created, err := deps.Surveys.AddSurvey(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleUpdateSurvey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u survey.SurveyUpdate
		if !decodeBody(w, r, &u) {
			return
		}
		updated, err := deps.Surveys.UpdateSurvey(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleListResponses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Surveys.Responses(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page(r, list))
	}
}

func handleAddResponse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in survey.NewResponse
		if !decodeBody(w, r, &in) {
			return
		}
		created, err := deps.Surveys.AddResponse(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleSurveyStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Surveys.Stats(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
