// Package api exposes the email, response and job-control surfaces
// over HTTP. Handlers stay thin: bind, delegate, map errors.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/jobs"
	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
	"github.com/akshatj2209/calender-assistant-sub001/internal/service"
)

type Handler struct {
	Emails    *service.EmailService
	Responses *service.ResponseService
	Jobs      *jobs.Manager
	Log       *zap.Logger
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")

	g.GET("/emails", h.SearchEmails)
	g.POST("/emails", h.CreateEmail)
	g.GET("/emails/pending", h.ListPending)
	g.GET("/emails/failed", h.ListFailed)
	g.GET("/emails/demo-requests", h.ListDemoRequests)
	g.GET("/emails/stats", h.EmailStats)
	g.POST("/emails/cleanup", h.CleanupEmails)
	g.GET("/emails/by-message-id/:messageId", h.GetEmailByMessageID)
	g.GET("/emails/:id", h.GetEmail)
	g.PUT("/emails/:id", h.UpdateEmail)
	g.DELETE("/emails/:id", h.DeleteEmail)
	g.POST("/emails/:id/processed", h.MarkProcessed)
	g.POST("/emails/:id/failed", h.MarkFailed)
	g.POST("/emails/:id/response-sent", h.MarkResponseSent)

	g.POST("/responses", h.CreateResponse)
	g.GET("/responses/:id", h.GetResponse)
	g.PUT("/responses/:id", h.EditResponse)
	g.POST("/responses/:id/reschedule", h.RescheduleResponse)
	g.POST("/responses/:id/cancel", h.CancelResponse)
	g.POST("/responses/:id/send", h.SendResponseNow)

	g.GET("/jobs/status", h.JobStatus)
	g.POST("/jobs/email-processing/trigger", h.TriggerProcessing)
	g.POST("/jobs/response-sending/trigger", h.TriggerSending)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, db.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, db.ErrConflict), errors.Is(err, db.ErrAlreadyTerminal):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, db.ErrTransport):
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parseFilter(c echo.Context) models.EmailFilter {
	var f models.EmailFilter
	f.User = c.QueryParam("user")
	f.Status = models.ProcessingStatus(c.QueryParam("status"))
	if v := c.QueryParam("isDemoRequest"); v != "" {
		b := v == "true"
		f.IsDemoRequest = &b
	}
	if v := c.QueryParam("responseGenerated"); v != "" {
		b := v == "true"
		f.ResponseGenerated = &b
	}
	if v := c.QueryParam("responseSent"); v != "" {
		b := v == "true"
		f.ResponseSent = &b
	}
	if v := c.QueryParam("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = &t
		}
	}
	if v := c.QueryParam("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Until = &t
		}
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	return f
}

type pagedEmails struct {
	Emails []models.EmailRecord `json:"emails"`
	Total  int                  `json:"total"`
	Page   int                  `json:"page"`
	Limit  int                  `json:"limit"`
}

func (h *Handler) SearchEmails(c echo.Context) error {
	f := parseFilter(c)
	f.Normalize()

	emails, total, err := h.Emails.Search(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pagedEmails{
		Emails: emails,
		Total:  total,
		Page:   f.Page,
		Limit:  f.Limit,
	})
}

func (h *Handler) CreateEmail(c echo.Context) error {
	var rec models.EmailRecord
	if err := c.Bind(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	created, err := h.Emails.Upsert(c.Request().Context(), rec)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetEmail(c echo.Context) error {
	rec, err := h.Emails.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetEmailByMessageID(c echo.Context) error {
	rec, err := h.Emails.GetByMessageID(c.Request().Context(), c.Param("messageId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

type emailUpdateRequest struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

func (h *Handler) UpdateEmail(c echo.Context) error {
	var req emailUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	rec, err := h.Emails.Update(c.Request().Context(), c.Param("id"), models.EmailUpdate{
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteEmail(c echo.Context) error {
	if err := h.Emails.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type markProcessedRequest struct {
	IsDemoRequest bool                   `json:"isDemoRequest"`
	Intent        *models.IntentAnalysis `json:"intent,omitempty"`
}

func (h *Handler) MarkProcessed(c echo.Context) error {
	var req markProcessedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	rec, err := h.Emails.MarkProcessed(c.Request().Context(), c.Param("id"), req.IsDemoRequest, req.Intent)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) MarkFailed(c echo.Context) error {
	rec, err := h.Emails.MarkFailed(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

type markResponseSentRequest struct {
	ResponseMessageID string `json:"responseMessageId"`
}

func (h *Handler) MarkResponseSent(c echo.Context) error {
	var req markResponseSentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	rec, err := h.Emails.MarkResponseSent(c.Request().Context(), c.Param("id"), req.ResponseMessageID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func listLimit(c echo.Context) int {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > models.MaxPageLimit {
		limit = models.DefaultPageLimit
	}
	return limit
}

func (h *Handler) ListPending(c echo.Context) error {
	recs, err := h.Emails.ListPending(c.Request().Context(), listLimit(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) ListFailed(c echo.Context) error {
	recs, err := h.Emails.ListFailed(c.Request().Context(), c.QueryParam("user"), listLimit(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) ListDemoRequests(c echo.Context) error {
	recs, err := h.Emails.ListDemoRequests(c.Request().Context(), listLimit(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) EmailStats(c echo.Context) error {
	until := time.Now()
	since := until.AddDate(0, 0, -30)
	if v := c.QueryParam("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}
	if v := c.QueryParam("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			until = t
		}
	}
	stats, err := h.Emails.Stats(c.Request().Context(), since, until)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

type cleanupRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

func (h *Handler) CleanupEmails(c echo.Context) error {
	req := cleanupRequest{OlderThanDays: 90}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	deleted, err := h.Emails.Cleanup(c.Request().Context(), req.OlderThanDays)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cleanupResponse{Deleted: deleted})
}

func (h *Handler) CreateResponse(c echo.Context) error {
	var resp models.ScheduledResponse
	if err := c.Bind(&resp); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := h.Responses.Create(c.Request().Context(), &resp); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetResponse(c echo.Context) error {
	resp, err := h.Responses.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type editResponseRequest struct {
	Subject     *string    `json:"subject"`
	Body        *string    `json:"body"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func (h *Handler) EditResponse(c echo.Context) error {
	var req editResponseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	resp, err := h.Responses.Edit(c.Request().Context(), c.Param("id"), models.ResponseEdit{
		Subject:     req.Subject,
		Body:        req.Body,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (h *Handler) RescheduleResponse(c echo.Context) error {
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	resp, err := h.Responses.Reschedule(c.Request().Context(), c.Param("id"), req.ScheduledAt)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CancelResponse(c echo.Context) error {
	resp, err := h.Responses.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SendResponseNow(c echo.Context) error {
	resp, err := h.Responses.SendNow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) JobStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Jobs.Status())
}

type triggerResponse struct {
	Triggered bool   `json:"triggered"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) TriggerProcessing(c echo.Context) error {
	if err := h.Jobs.TriggerProcessing(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, triggerResponse{Triggered: true, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, triggerResponse{Triggered: true})
}

func (h *Handler) TriggerSending(c echo.Context) error {
	if err := h.Jobs.TriggerSending(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, triggerResponse{Triggered: true, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, triggerResponse{Triggered: true})
}
