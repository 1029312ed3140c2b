package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-contrib-api/internal/dto"
	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/service"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/response"
)

type eventService interface {
	List(ctx context.Context, filter models.EventFilter) ([]dto.EventView, *models.Pagination, error)
	Get(ctx context.Context, id string) (*dto.EventView, error)
	Create(ctx context.Context, req service.CreateEventRequest, actor models.Actor, meta models.RequestMeta) (*dto.EventView, error)
	Update(ctx context.Context, id string, req service.UpdateEventRequest, actor models.Actor, meta models.RequestMeta) (*dto.EventView, error)
	Delete(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) error
}

// EventHandler exposes contribution event endpoints.
type EventHandler struct {
	service eventService
}

// NewEventHandler constructs an event handler.
func NewEventHandler(svc eventService) *EventHandler {
	return &EventHandler{service: svc}
}

// List godoc
// @Summary List events
// @Description Events with closure flags computed against the current time
// @Tags Events
// @Produce json
// @Param faculty_id query string false "Faculty filter"
// @Param closure_from query string false "Closure date lower bound (RFC3339 or YYYY-MM-DD)"
// @Param closure_to query string false "Closure date upper bound (RFC3339 or YYYY-MM-DD)"
// @Param search query string false "Search term"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var filter models.EventFilter
	filter.Page, filter.PageSize = parsePaging(c)
	filter.Search = c.Query("search")
	filter.FacultyID = c.Query("faculty_id")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	var err error
	if filter.ClosureFrom, err = parseTimeParam(c.Query("closure_from")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid closure_from"))
		return
	}
	if filter.ClosureTo, err = parseTimeParam(c.Query("closure_to")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid closure_to"))
		return
	}

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid event payload"))
		return
	}

	event, err := h.service.Create(c.Request.Context(), req, actor, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid event payload"))
		return
	}

	event, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actor, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
