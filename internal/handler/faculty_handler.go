package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/service"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/response"
)

type facultyService interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultySummary, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Faculty, error)
	Create(ctx context.Context, req service.CreateFacultyRequest, actor models.Actor, meta models.RequestMeta) (*models.Faculty, error)
	Update(ctx context.Context, id string, req service.UpdateFacultyRequest, actor models.Actor, meta models.RequestMeta) (*models.Faculty, error)
	Delete(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) error
	UploadBanner(ctx context.Context, id string, upload models.Upload, actor models.Actor, meta models.RequestMeta) (*models.Faculty, error)
}

// FacultyHandler exposes faculty management endpoints.
type FacultyHandler struct {
	service facultyService
}

// NewFacultyHandler constructs a faculty handler.
func NewFacultyHandler(svc facultyService) *FacultyHandler {
	return &FacultyHandler{service: svc}
}

// List godoc
// @Summary List faculties
// @Description List live faculties with dependent counts
// @Tags Faculties
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Search term"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /faculties [get]
func (h *FacultyHandler) List(c *gin.Context) {
	var filter models.FacultyFilter
	filter.Page, filter.PageSize = parsePaging(c)
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get faculty
// @Tags Faculties
// @Produce json
// @Param id path string true "Faculty ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculties/{id} [get]
func (h *FacultyHandler) Get(c *gin.Context) {
	faculty, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}

// Create godoc
// @Summary Create faculty
// @Tags Faculties
// @Accept json
// @Produce json
// @Param payload body service.CreateFacultyRequest true "Faculty payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculties [post]
func (h *FacultyHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid faculty payload"))
		return
	}

	faculty, err := h.service.Create(c.Request.Context(), req, actor, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, faculty)
}

// Update godoc
// @Summary Update faculty
// @Description Partial update; an explicit null mc_id removes the coordinator
// @Tags Faculties
// @Accept json
// @Produce json
// @Param id path string true "Faculty ID"
// @Param payload body service.UpdateFacultyRequest true "Faculty payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculties/{id} [put]
func (h *FacultyHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid faculty payload"))
		return
	}

	faculty, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}

// Delete godoc
// @Summary Delete faculty
// @Description Soft deletes the faculty and its dependents
// @Tags Faculties
// @Param id path string true "Faculty ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculties/{id} [delete]
func (h *FacultyHandler) Delete(c *gin.Context) {
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

// UploadBanner godoc
// @Summary Upload faculty banner
// @Tags Faculties
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Faculty ID"
// @Param file formData file true "Banner image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /faculties/{id}/banner [post]
func (h *FacultyHandler) UploadBanner(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "banner file is required"))
		return
	}
	upload, err := readUpload(fh)
	if err != nil {
		response.Error(c, err)
		return
	}

	faculty, err := h.service.UploadBanner(c.Request.Context(), c.Param("id"), upload, actor, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}
