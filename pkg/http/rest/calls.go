package rest

import (
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/commune-app/callengine/pkg/call"
	"github.com/commune-app/callengine/pkg/identity"
	"github.com/commune-app/callengine/pkg/store"
)

var ErrEmptyFields = errors.New("one or more fields is empty")

// SessionFactory builds the per-user call service for a scope.
type SessionFactory func(scope string, self identity.Identity) call.Service

// callController owns one call session per user and scope. Sessions
// are reused across calls; the service itself rejects overlapping
// operations.
type callController struct {
	factory SessionFactory

	lock     sync.Mutex
	sessions map[string]call.Service
}

func NewCallController(factory SessionFactory) callController {
	return callController{
		factory:  factory,
		sessions: make(map[string]call.Service),
	}
}

func (cc *callController) session(scope string, self identity.Identity) call.Service {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	key := scope + "/" + self.UserID
	if svc, found := cc.sessions[key]; found {
		return svc
	}
	svc := cc.factory(scope, self)
	cc.sessions[key] = svc
	return svc
}

// Shutdown tears down every live session.
func (cc *callController) Shutdown() {
	cc.lock.Lock()
	defer cc.lock.Unlock()
	for _, svc := range cc.sessions {
		svc.Cleanup()
	}
	cc.sessions = make(map[string]call.Service)
}

type StartCallRequest struct {
	Scope string `json:"scope"`
}

type JoinCallRequest struct {
	Scope string `json:"scope"`
}

type LeaveCallRequest struct {
	Scope string `json:"scope"`
	End   bool   `json:"end"`
}

type SendMessageRequest struct {
	Scope   string `json:"scope"`
	Content string `json:"content"`
}

func (cc *callController) StartCall(c echo.Context) error {
	// Bind request data
	data := new(StartCallRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	// Sanitise request
	if data.Scope == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	self, ok := currentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
	}

	// Call service
	created, err := cc.session(data.Scope, self).StartCall(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, created)
}

func (cc *callController) JoinCall(c echo.Context) error {
	data := new(JoinCallRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	callID := c.Param("id")
	if data.Scope == "" || callID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	self, ok := currentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
	}

	if err := cc.session(data.Scope, self).JoinCall(c.Request().Context(), callID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (cc *callController) LeaveCall(c echo.Context) error {
	data := new(LeaveCallRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Scope == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	self, ok := currentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
	}

	svc := cc.session(data.Scope, self)
	var err error
	if data.End {
		err = svc.EndCall(c.Request().Context())
	} else {
		err = svc.LeaveCall(c.Request().Context())
	}
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (cc *callController) SendMessage(c echo.Context) error {
	data := new(SendMessageRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	callID := c.Param("id")
	if data.Scope == "" || data.Content == "" || callID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	self, ok := currentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
	}

	svc := cc.session(data.Scope, self)
	if svc.CallID() != callID {
		return echo.NewHTTPError(http.StatusBadRequest, call.ErrNoActiveCall)
	}
	if err := svc.SendMessage(c.Request().Context(), data.Content); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (cc *callController) UploadFile(c echo.Context) error {
	scope := c.FormValue("scope")
	callID := c.Param("id")
	if scope == "" || callID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	body, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	defer body.Close()

	self, ok := currentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
	}

	svc := cc.session(scope, self)
	if svc.CallID() != callID {
		return echo.NewHTTPError(http.StatusBadRequest, call.ErrNoActiveCall)
	}
	ref, err := svc.UploadFile(c.Request().Context(), fh.Filename, body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ref)
}

func (cc *callController) ListMessages(c echo.Context) error {
	scope := c.QueryParam("scope")
	callID := c.Param("id")
	if scope == "" || callID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	self, ok := currentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
	}

	svc := cc.session(scope, self)
	if svc.CallID() != callID {
		return echo.NewHTTPError(http.StatusBadRequest, call.ErrNoActiveCall)
	}
	msgs, err := svc.Messages(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// httpError maps service errors onto HTTP statuses.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, call.ErrPermission):
		return echo.NewHTTPError(http.StatusForbidden, err)
	case errors.Is(err, call.ErrNoActiveCall),
		errors.Is(err, call.ErrCallInProgress),
		errors.Is(err, call.ErrCallCompleted):
		return echo.NewHTTPError(http.StatusBadRequest, err)
	case errors.Is(err, store.ErrCallNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err)
	case errors.Is(err, store.ErrSignaling):
		return echo.NewHTTPError(http.StatusBadGateway, err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
}
