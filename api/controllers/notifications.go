package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/evcharge-backend/api/responses"
	"github.com/angelmondragon/evcharge-backend/api/validators"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
)

// inboxHandler resolves the actor and service before handing off; handle
// returns the success body, or nil for 204.
func inboxHandler(svc notifications.Service, logg *logger.Logger, handle func(*http.Request, auth.Actor) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
			return
		}
		body, err := handle(r, actor)
		switch {
		case err != nil:
			responses.WriteError(r.Context(), logg, w, err)
		case body == nil:
			w.WriteHeader(http.StatusNoContent)
		default:
			responses.WriteSuccess(w, body)
		}
	}
}

// NotificationList returns the caller's inbox, newest first.
func NotificationList(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, actor auth.Actor) (any, error) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		unread, err := validators.ParseQueryBool(r, "unread")
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), actor, notifications.ListParams{
			Limit:      limit,
			Cursor:     strings.TrimSpace(r.URL.Query().Get("cursor")),
			UnreadOnly: unread,
		})
	})
}

// NotificationMarkRead marks one inbox entry read.
func NotificationMarkRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, actor auth.Actor) (any, error) {
		id, err := pathUUID(r, "notificationId")
		if err != nil {
			return nil, err
		}
		return nil, svc.MarkRead(r.Context(), actor, id)
	})
}

func NotificationMarkAllRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, actor auth.Actor) (any, error) {
		count, err := svc.MarkAllRead(r.Context(), actor)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": count}, nil
	})
}
