package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-contrib-api/internal/dto"
	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/service"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/export"
	"github.com/noah-isme/uni-contrib-api/pkg/response"
)

const contributionFilesField = "files"

type contributionService interface {
	Submit(ctx context.Context, actor models.Actor, req service.SubmitContributionRequest, uploads []models.Upload, meta models.RequestMeta) (*models.Contribution, error)
	Update(ctx context.Context, id string, actor models.Actor, req service.UpdateContributionRequest, uploads []models.Upload, meta models.RequestMeta) (*models.Contribution, error)
	Delete(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) error
	Review(ctx context.Context, id string, actor models.Actor, req service.ReviewContributionRequest, meta models.RequestMeta) (*models.Contribution, error)
	SetPublic(ctx context.Context, id string, actor models.Actor, req service.VisibilityRequest, meta models.RequestMeta) (*models.Contribution, error)
	List(ctx context.Context, actor models.Actor, filter models.ContributionFilter) ([]models.Contribution, *models.Pagination, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.Contribution, error)
	FileURL(ctx context.Context, id string, index int, actor models.Actor) (*dto.FileURL, error)
	Download(ctx context.Context, token string) (*service.DownloadedFile, error)
	Stats(ctx context.Context, filter models.ContributionStatsFilter) (*dto.ContributionStats, error)
	Export(ctx context.Context, rawFormat string, filter models.ContributionStatsFilter) ([]byte, export.Format, error)
}

// ContributionHandler exposes submission, moderation and reporting endpoints.
type ContributionHandler struct {
	service contributionService
	now     func() time.Time
}

// NewContributionHandler constructs a contribution handler.
func NewContributionHandler(svc contributionService) *ContributionHandler {
	return &ContributionHandler{service: svc, now: time.Now}
}

// List godoc
// @Summary List contributions
// @Description Results are scoped to what the caller's role may see
// @Tags Contributions
// @Produce json
// @Param event_id query string false "Event filter"
// @Param faculty_id query string false "Faculty filter"
// @Param author_id query string false "Author filter"
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param is_public query bool false "Visibility filter"
// @Param search query string false "Search term"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /contributions [get]
func (h *ContributionHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var filter models.ContributionFilter
	filter.Page, filter.PageSize = parsePaging(c)
	filter.EventID = c.Query("event_id")
	filter.FacultyID = c.Query("faculty_id")
	filter.AuthorID = c.Query("author_id")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	filter.IsPublic = parseOptionalBool(c.Query("is_public"))
	if status := c.Query("status"); status != "" {
		s := models.ContributionStatus(status)
		filter.Status = &s
	}

	items, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get contribution
// @Tags Contributions
// @Produce json
// @Param id path string true "Contribution ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /contributions/{id} [get]
func (h *ContributionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Submit godoc
// @Summary Submit contribution
// @Tags Contributions
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param event_id formData string true "Event ID"
// @Param files formData file true "Contribution files"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /contributions [post]
func (h *ContributionHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.SubmitContributionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, bindError(err, "invalid contribution payload"))
		return
	}
	uploads, err := readUploads(c, contributionFilesField)
	if err != nil {
		response.Error(c, err)
		return
	}

	item, err := h.service.Submit(c.Request.Context(), actor, req, uploads, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update contribution
// @Description Authors may edit and attach files until the final closure date
// @Tags Contributions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Contribution ID"
// @Param title formData string false "Title"
// @Param description formData string false "Description"
// @Param files formData file false "Additional files"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /contributions/{id} [put]
func (h *ContributionHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateContributionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, bindError(err, "invalid contribution payload"))
		return
	}
	uploads, err := readUploads(c, contributionFilesField)
	if err != nil {
		response.Error(c, err)
		return
	}

	item, err := h.service.Update(c.Request.Context(), c.Param("id"), actor, req, uploads, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete contribution
// @Tags Contributions
// @Param id path string true "Contribution ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /contributions/{id} [delete]
func (h *ContributionHandler) Delete(c *gin.Context) {
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

// Review godoc
// @Summary Review contribution
// @Tags Contributions
// @Accept json
// @Produce json
// @Param id path string true "Contribution ID"
// @Param payload body service.ReviewContributionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /contributions/{id}/review [patch]
func (h *ContributionHandler) Review(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ReviewContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid review payload"))
		return
	}

	item, err := h.service.Review(c.Request.Context(), c.Param("id"), actor, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// SetVisibility godoc
// @Summary Publish or unpublish contribution
// @Tags Contributions
// @Accept json
// @Produce json
// @Param id path string true "Contribution ID"
// @Param payload body service.VisibilityRequest true "Visibility"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /contributions/{id}/visibility [patch]
func (h *ContributionHandler) SetVisibility(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid visibility payload"))
		return
	}

	item, err := h.service.SetPublic(c.Request.Context(), c.Param("id"), actor, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// FileURL godoc
// @Summary Signed file link
// @Tags Contributions
// @Produce json
// @Param id path string true "Contribution ID"
// @Param index path int true "File index"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /contributions/{id}/files/{index}/url [get]
func (h *ContributionHandler) FileURL(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file index must be a non-negative integer"))
		return
	}

	link, err := h.service.FileURL(c.Request.Context(), c.Param("id"), index, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download contribution file
// @Description Resolves a signed token issued by the file url endpoint
// @Tags Contributions
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /files/download [get]
func (h *ContributionHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token is required"))
		return
	}

	file, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Content.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.Name),
	}
	c.DataFromReader(http.StatusOK, file.Size, file.MIMEType, file.Content, headers)
}

// Stats godoc
// @Summary Contribution statistics
// @Tags Contributions
// @Produce json
// @Param event_id query string false "Event filter"
// @Param faculty_id query string false "Faculty filter"
// @Success 200 {object} response.Envelope
// @Router /contributions/stats [get]
func (h *ContributionHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), statsFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export contribution statistics
// @Tags Contributions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param event_id query string false "Event filter"
// @Param faculty_id query string false "Faculty filter"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /contributions/export [get]
func (h *ContributionHandler) Export(c *gin.Context) {
	data, format, err := h.service.Export(c.Request.Context(), c.Query("format"), statsFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("contribution-stats-%s.%s", h.now().UTC().Format("20060102"), format)
	response.Attachment(c, filename, format.ContentType(), data)
}

func statsFilter(c *gin.Context) models.ContributionStatsFilter {
	return models.ContributionStatsFilter{EventID: c.Query("event_id"), FacultyID: c.Query("faculty_id")}
}
