package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/staffdesk/internal/portal"
)

func notificationFilter(r *http.Request) portal.NotificationFilter {
	q := r.URL.Query()
	return portal.NotificationFilter{
		Role:       portal.Role(q.Get("role")),
		UserID:     q.Get("userId"),
		UnreadOnly: parseBoolParam(r, "unread"),
	}
}

func handleListNotifications(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Portal.Notifications(notificationFilter(r))
		writeJSON(w, http.StatusOK, page(r, list))
	}
}

func handleAddNotification(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in portal.NewNotification
		if !decodeBody(w, r, &in) {
			return
		}
		created, err := deps.Portal.AddNotification(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleMarkRead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Portal.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
			storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleMarkAllRead marks every notification matching the role and userId
// query parameters as read.
func handleMarkAllRead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := notificationFilter(r)
		f.UnreadOnly = false
		n, err := deps.Portal.MarkAllNotificationsRead(r.Context(), f)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": n})
	}
}
