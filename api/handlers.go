package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"agenda-tracker/domain"
)

const (
	defaultForwardLockTTL = 30 * time.Second
	healthTimeout         = 2 * time.Second
)

var (
	errForwardInFlight    = errors.New("another forward of this task is in progress")
	errInvalidBody        = errors.New("invalid body")
	errInvalidCredentials = errors.New("invalid credentials")
)

// Options carries the optional collaborators of the API.
type Options struct {
	Settings       domain.Settings
	Locker         ForwardLocker
	Events         EventSink
	Broker         *Broker
	DevIdentity    bool
	PublishWorkers int
	PublishBuffer  int
}

type handlers struct {
	store     Storage
	auth      Authenticator
	logger    *log.Logger
	settings  domain.Settings
	locker    ForwardLocker
	publisher *eventPublisher
	broker    *Broker
}

func newHandlers(store Storage, auth Authenticator, logger *log.Logger, opts Options) *handlers {
	h := &handlers{
		store:    store,
		auth:     auth,
		logger:   logger,
		settings: opts.Settings,
		locker:   opts.Locker,
		broker:   opts.Broker,
	}
	if len(h.settings.Boards) == 0 {
		h.settings = domain.DefaultSettings()
	}
	if h.locker == nil {
		h.locker = NewMemoryForwardLocker(defaultForwardLockTTL)
	}
	if h.broker == nil {
		h.broker = NewBroker(nil, logger)
	}
	if opts.Events != nil {
		h.publisher = newEventPublisher(opts.Events, opts.PublishWorkers, opts.PublishBuffer, logger)
	}
	return h
}

// Register wires up all API routes on the provided Echo instance. The
// returned func drains queued forward events.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger, opts Options) func() {
	h := newHandlers(store, auth, logger, opts)
	ident := identify(auth, opts.DevIdentity, false)
	gate := requireAccess(store, logger)

	e.GET("/healthz", h.healthz)
	e.POST("/api/login", h.postLogin)
	e.POST("/api/session", h.postSession, ident)
	e.GET("/api/me", h.getMe, ident)
	e.POST("/api/password", h.postPassword, ident)

	e.GET("/api/dashboard", h.getDashboard, ident, gate)
	e.GET("/api/tasks", h.getTasks, ident, gate)
	e.GET("/api/users", h.getUsers, ident, gate)
	e.GET("/api/history", h.getHistory, ident, gate)
	e.GET("/api/report", h.getReport, ident, gate)
	e.POST("/api/forward", h.postForward, ident, gate)
	e.GET("/api/stream", streamVersions(h.broker), identify(auth, opts.DevIdentity, true), gate)

	return h.publisher.shutdown
}

func (h *handlers) healthz(c echo.Context) error {
	p, ok := h.store.(Pinger)
	if !ok {
		return c.NoContent(http.StatusOK)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("storage ping failed")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) postSession(c echo.Context) error {
	id := identityFrom(c)
	name := id.DisplayName
	if name == "" {
		name = id.UserID
	}
	u, err := h.store.RegisterUser(c.Request().Context(), id.UserID, name)
	if err != nil {
		h.logger.WithFields(log.Fields{"error_stage": "register", "user_id": id.UserID}).WithError(err).Error("register user failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "unable to register user"})
	}
	_, state := domain.Access([]domain.User{u}, u.ID)
	return c.JSON(http.StatusOK, sessionResponse{User: &u, Access: state, DisplayName: displayNameOf(u, id)})
}

func (h *handlers) getMe(c echo.Context) error {
	id := identityFrom(c)
	users, err := h.store.FetchUsers(c.Request().Context())
	if err != nil {
		h.logger.WithFields(log.Fields{"error_stage": "users", "user_id": id.UserID}).WithError(err).Error("fetch users failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "user directory unavailable"})
	}
	u, state := domain.Access(users, id.UserID)
	resp := sessionResponse{Access: state, DisplayName: displayNameOf(u, id)}
	if u.ID != "" {
		resp.User = &u
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) postLogin(c echo.Context) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: errInvalidBody.Error()})
	}
	creds, ok := h.store.(CredentialStore)
	if !ok {
		return c.JSON(http.StatusNotImplemented, errorResponse{Error: "password sign-in is not available"})
	}

	ctx := c.Request().Context()
	hash, err := creds.PasswordHash(ctx, req.UserID)
	if err != nil || hash == "" {
		if err != nil {
			h.logger.WithField("user_id", req.UserID).WithError(err).Info("password lookup failed")
		}
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: errInvalidCredentials.Error()})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: errInvalidCredentials.Error()})
	}

	users, err := h.store.FetchUsers(ctx)
	if err != nil {
		h.logger.WithFields(log.Fields{"error_stage": "users", "user_id": req.UserID}).WithError(err).Error("fetch users failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "user directory unavailable"})
	}
	u, found := domain.FindUser(users, req.UserID)
	if !found {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: errInvalidCredentials.Error()})
	}
	token, expires, err := h.auth.IssueSession(u)
	if err != nil {
		h.logger.WithError(err).Error("issue session failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unable to issue session"})
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: u})
}

func (h *handlers) postPassword(c echo.Context) error {
	id := identityFrom(c)
	var req passwordRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: errInvalidBody.Error()})
	}
	if err := domain.ValidatePassword(req.Password, req.Confirm); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unable to hash password"})
	}
	if err := h.store.SetPassword(c.Request().Context(), id.UserID, string(hash)); err != nil {
		h.logger.WithFields(log.Fields{"error_stage": "set_password", "user_id": id.UserID}).WithError(err).Error("set password failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "unable to save password"})
	}
	return c.JSON(http.StatusOK, domain.ForwardResult{Success: true})
}

func (h *handlers) getDashboard(c echo.Context) (err error) {
	ctx := c.Request().Context()
	metrics, spanCtx := newDashboardRequestMetrics(ctx, h.logger)
	if spanCtx != nil {
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
	}
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()
	metrics.ObserveAuth(authDurationFrom(c))

	f, filterErr := h.settings.ResolveFilter(c.QueryParam("sheet"), c.QueryParam("work"))
	if filterErr != nil {
		metrics.SetErrorStage("filter")
		err = c.JSON(http.StatusBadRequest, errorResponse{Error: filterErr.Error()})
		return err
	}
	metrics.SetFilter(f.Sheet, f.Work)

	fetchStart := time.Now()
	revs, fetchErr := h.store.FetchRevisions(ctx)
	metrics.ObserveFetch(time.Since(fetchStart))
	degraded := false
	if fetchErr != nil {
		metrics.SetErrorStage("storage")
		h.logger.WithFields(log.Fields{"error_stage": "storage", "sheet": f.Sheet}).WithError(fetchErr).Error("fetch revisions failed")
		revs, degraded = nil, true
	}

	deriveStart := time.Now()
	d := domain.BuildDashboard(revs, usersFrom(c), viewerFrom(c), f, h.settings)
	metrics.ObserveDerive(time.Since(deriveStart))
	d.Version = nextVersion()
	d.Degraded = degraded

	tasks := 0
	for _, g := range d.Groups {
		tasks += len(g.Tasks)
	}
	metrics.SetResult(len(d.Groups), tasks, degraded)

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, d)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func (h *handlers) getTasks(c echo.Context) error {
	revs, err := h.store.FetchRevisions(c.Request().Context())
	if err != nil {
		h.logger.WithField("error_stage", "storage").WithError(err).Error("fetch revisions failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "task log unavailable"})
	}
	if sheet := c.QueryParam("sheet"); sheet != "" {
		revs = domain.FilterRevisions(revs, domain.Filter{Sheet: sheet, Work: c.QueryParam("work")})
	}
	if revs == nil {
		revs = []domain.Revision{}
	}
	return c.JSON(http.StatusOK, tasksResponse{Tasks: revs, Version: nextVersion()})
}

func (h *handlers) getUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, usersResponse{Users: usersFrom(c), Version: nextVersion()})
}

func (h *handlers) getHistory(c echo.Context) error {
	f, err := h.settings.ResolveFilter(c.QueryParam("sheet"), c.QueryParam("work"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	meetingNo, subject := c.QueryParam("meetingNo"), c.QueryParam("subject")
	if subject == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "subject is required"})
	}
	if meetingNo == "" {
		meetingNo = domain.NoMeeting
	}

	revs, err := h.store.FetchRevisions(c.Request().Context())
	if err != nil {
		h.logger.WithField("error_stage", "storage").WithError(err).Error("fetch revisions failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "task log unavailable"})
	}
	for _, t := range domain.MeetingTasks(revs, f, meetingNo) {
		if t.Subject != subject {
			continue
		}
		history := domain.BuildHistory(revs).For(t.Key())
		return c.JSON(http.StatusOK, historyResponse{
			Task:     t,
			Badge:    domain.DeriveStatus(t, history),
			History:  history,
			Timeline: domain.BuildTimeline(history),
			Version:  nextVersion(),
		})
	}
	return c.JSON(http.StatusNotFound, errorResponse{Error: domain.ErrRowNotFound.Error()})
}

func (h *handlers) getReport(c echo.Context) error {
	f, err := h.settings.ResolveFilter(c.QueryParam("sheet"), c.QueryParam("work"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	meetingNo := c.QueryParam("meetingNo")
	if meetingNo == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "meetingNo is required"})
	}
	revs, err := h.store.FetchRevisions(c.Request().Context())
	if err != nil {
		h.logger.WithField("error_stage", "storage").WithError(err).Error("fetch revisions failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "task log unavailable"})
	}
	tasks := domain.MeetingTasks(revs, f, meetingNo)
	if len(tasks) == 0 {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "meeting not found"})
	}
	return c.String(http.StatusOK, domain.MeetingReport(domain.MeetingTitle(meetingNo), tasks))
}

func (h *handlers) postForward(c echo.Context) error {
	ctx := c.Request().Context()
	viewer := viewerFrom(c)

	var req domain.ForwardRequest
	if err := decodeBody(c, &req); err != nil {
		return h.forwardFailed(c, "", http.StatusBadRequest, errInvalidBody)
	}
	action, err := domain.ParseAction(string(req.Action))
	if err != nil {
		return h.forwardFailed(c, "", http.StatusBadRequest, err)
	}
	req.Action = action
	req.Actor = viewer.DisplayName()
	req.ActorRole = viewer.Role
	if !slices.Contains(h.settings.Boards, req.Sheet) {
		return h.forwardFailed(c, action, http.StatusBadRequest, fmt.Errorf("%w: %q", domain.ErrUnknownSheet, req.Sheet))
	}

	revs, err := h.store.FetchRevisions(ctx)
	if err != nil {
		h.logger.WithField("error_stage", "storage").WithError(err).Error("fetch revisions failed")
		return h.forwardFailed(c, action, http.StatusBadGateway, err)
	}
	rep, _, err := domain.Representative(revs, req.Sheet, req.RowIndex)
	if err != nil {
		return h.forwardFailed(c, action, forwardStatus(err), err)
	}
	if err := domain.CheckForward(rep, req); err != nil {
		return h.forwardFailed(c, action, forwardStatus(err), err)
	}
	if err := domain.ValidateTarget(action, req.NextHolder, usersFrom(c)); err != nil {
		return h.forwardFailed(c, action, forwardStatus(err), err)
	}
	// RETURN always goes back to the owner and CLOSE has no recipient.
	req.NextHolder = domain.Recipient(rep, req)

	key := rep.Key().String()
	token, locked, err := h.locker.Acquire(ctx, key)
	if err != nil {
		h.logger.WithField("error_stage", "lock").WithError(err).Error("acquire forward lock failed")
		return h.forwardFailed(c, action, http.StatusBadGateway, err)
	}
	if !locked {
		return h.forwardFailed(c, action, http.StatusConflict, errForwardInFlight)
	}
	defer func() {
		if err := h.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			h.logger.WithField("task", key).WithError(err).Warn("release forward lock failed")
		}
	}()

	newID, err := h.store.ForwardTask(ctx, req)
	if err != nil {
		status := forwardStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithFields(log.Fields{"error_stage": "forward", "task": key}).WithError(err).Error("forward failed")
		}
		return h.forwardFailed(c, action, status, err)
	}

	version := nextVersion()
	ev := domain.EventFor(rep, req, newID, time.Now().UTC(), version)
	h.publisher.publish(ev)
	h.broker.Notify(ctx, version)
	forwardTotal.WithLabelValues(string(action), "ok").Inc()

	h.logger.WithFields(log.Fields{
		"user_id":     viewer.ID,
		"actor":       req.Actor,
		"action":      action,
		"sheet":       req.Sheet,
		"row_index":   req.RowIndex,
		"revision_id": newID,
		"next_holder": ev.NextHolder,
	}).Info("task forwarded")
	return c.JSON(http.StatusOK, domain.ForwardResult{Success: true, NewID: newID})
}

func (h *handlers) forwardFailed(c echo.Context, action domain.Action, status int, err error) error {
	label := string(action)
	if label == "" {
		label = "unknown"
	}
	forwardTotal.WithLabelValues(label, resultLabel(status)).Inc()
	return c.JSON(status, domain.ForwardResult{Error: err.Error()})
}

func forwardStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrTargetRequired),
		errors.Is(err, domain.ErrUnknownTarget),
		errors.Is(err, domain.ErrUnknownSheet):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTransitionNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStaleRevision):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func resultLabel(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	}
	return "error"
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
