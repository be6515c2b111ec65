package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

type stubInbox struct {
	params  notifications.ListParams
	caller  auth.Actor
	marked  uuid.UUID
	markErr error
}

func (s *stubInbox) List(_ context.Context, actor auth.Actor, params notifications.ListParams) (*notifications.ListResult, error) {
	s.caller, s.params = actor, params
	return &notifications.ListResult{Items: []notifications.NotificationDTO{}}, nil
}

func (s *stubInbox) MarkRead(_ context.Context, actor auth.Actor, id uuid.UUID) error {
	s.caller, s.marked = actor, id
	return s.markErr
}

func (s *stubInbox) MarkAllRead(_ context.Context, actor auth.Actor) (int64, error) {
	s.caller = actor
	return 2, nil
}

func TestNotificationListParsesFilters(t *testing.T) {
	inbox := &stubInbox{}
	req, actor := withActor(httptest.NewRequest(http.MethodGet, "/notifications?unread=true&limit=5&cursor=abc", nil), enums.UserRoleDriver)
	resp := httptest.NewRecorder()
	NotificationList(inbox, nil)(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, actor.UserID, inbox.caller.UserID)
	assert.Equal(t, notifications.ListParams{Limit: 5, Cursor: "abc", UnreadOnly: true}, inbox.params)
}

func TestNotificationMarkRead(t *testing.T) {
	inbox := &stubInbox{}
	id := uuid.New()
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/notifications/"+id.String()+"/read", nil), enums.UserRoleDriver)
	req = withRouteParams(req, map[string]string{"notificationId": id.String()})
	resp := httptest.NewRecorder()
	NotificationMarkRead(inbox, nil)(resp, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, id, inbox.marked)
}

func TestNotificationMarkReadNotFound(t *testing.T) {
	inbox := &stubInbox{markErr: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")}
	id := uuid.New()
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.UserRoleDriver)
	req = withRouteParams(req, map[string]string{"notificationId": id.String()})
	resp := httptest.NewRecorder()
	NotificationMarkRead(inbox, nil)(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeNotFound), errorCode(t, resp))
}

func TestNotificationMarkAllRead(t *testing.T) {
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/notifications/read-all", nil), enums.UserRoleDriver)
	resp := httptest.NewRecorder()
	NotificationMarkAllRead(&stubInbox{}, nil)(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"updated":2`)
}
