// Package api serves the HR portal over HTTP and MCP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/storage"
	"github.com/kalambet/staffdesk/internal/survey"
)

// DocumentStore persists text extracted from uploaded attachments.
type DocumentStore interface {
	SaveDocument(d storage.Document) error
	ListDocuments(requestID string) ([]storage.Document, error)
}

type Deps struct {
	Portal    *portal.Store
	Surveys   *survey.Service
	Documents DocumentStore
	Token     string
	Logger    *slog.Logger // optional; defaults to slog.Default()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewHandler returns the portal REST API. Every route except /health
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Route("/vacation-requests", func(r chi.Router) {
			r.Get("/", handleListVacations(deps))
			r.Post("/", handleAddVacation(deps))
			r.Get("/{id}", handleGetVacation(deps))
			r.Patch("/{id}", handleUpdateVacation(deps))
			r.Post("/{id}/approve", handleDecideVacation(deps, true))
			r.Post("/{id}/reject", handleDecideVacation(deps, false))
			r.Post("/{id}/documents", handleUploadDocument(deps))
			r.Get("/{id}/documents", handleListDocuments(deps))
		})

		r.Route("/objectives", func(r chi.Router) {
			r.Get("/", handleListObjectives(deps))
			r.Post("/", handleAddObjective(deps))
			r.Patch("/{id}", handleUpdateObjective(deps))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", handleListNotifications(deps))
			r.Post("/", handleAddNotification(deps))
			r.Post("/read-all", handleMarkAllRead(deps))
			r.Post("/{id}/read", handleMarkRead(deps))
		})

		r.Route("/surveys", func(r chi.Router) {
			r.Get("/", handleListSurveys(deps))
			r.Post("/", handleAddSurvey(deps))
			r.Get("/{id}", handleGetSurvey(deps))
			r.Patch("/{id}", handleUpdateSurvey(deps))
			r.Get("/{id}/responses", handleListResponses(deps))
			r.Post("/{id}/responses", handleAddResponse(deps))
			r.Get("/{id}/stats", handleSurveyStats(deps))
		})

		r.Get("/stats", handleStats(deps))
		r.Get("/data", handleExport(deps))
		r.Delete("/data", handleClear(deps))

		r.Get("/events", handleEventStream(deps))
		r.Get("/events/ws", handleEventSocket(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type statsResponse struct {
	portal.Stats
	TotalSurveys  int `json:"totalSurveys"`
	ActiveSurveys int `json:"activeSurveys"`
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, collectStats(deps))
	}
}

func collectStats(deps Deps) statsResponse {
	return statsResponse{
		Stats:         deps.Portal.Stats(),
		TotalSurveys:  len(deps.Surveys.Surveys(survey.SurveyFilter{})),
		ActiveSurveys: len(deps.Surveys.Surveys(survey.SurveyFilter{Status: survey.StatusActive})),
	}
}

// Export is the full dump returned by GET /data.
type Export struct {
	VacationRequests []portal.VacationRequest `json:"vacationRequests"`
	Objectives       []portal.Objective       `json:"objectives"`
	Notifications    []portal.Notification    `json:"notifications"`
	Surveys          []survey.Survey          `json:"surveys"`
	SurveyResponses  []survey.Response        `json:"surveyResponses"`
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := Export{
			VacationRequests: nonNil(deps.Portal.VacationRequests(portal.VacationFilter{})),
			Objectives:       nonNil(deps.Portal.Objectives(portal.ObjectiveFilter{})),
			Notifications:    nonNil(deps.Portal.Notifications(portal.NotificationFilter{})),
			Surveys:          nonNil(deps.Surveys.Surveys(survey.SurveyFilter{})),
			SurveyResponses:  []survey.Response{},
		}
		for _, sv := range out.Surveys {
			rs, err := deps.Surveys.Responses(sv.ID)
			if err != nil {
				// Cleared concurrently; export what is left.
				continue
			}
			out.SurveyResponses = append(out.SurveyResponses, rs...)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Portal.ClearAllData(r.Context()); err != nil {
			storeError(w, err)
			return
		}
		if err := deps.Surveys.Clear(r.Context()); err != nil {
			storeError(w, err)
			return
		}
		deps.logger().Info("all data cleared", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusNoContent)
	}
}
