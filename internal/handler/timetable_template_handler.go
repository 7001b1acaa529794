package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableTemplateService interface {
	Create(ctx context.Context, req dto.CreateTimetableTemplateRequest) (*models.TimetableTemplate, error)
	Get(ctx context.Context, id string) (*models.TimetableTemplate, error)
	List(ctx context.Context, query dto.TimetableTemplateQuery) ([]models.TimetableTemplate, error)
	Update(ctx context.Context, id string, req dto.UpdateTimetableTemplateRequest) (*models.TimetableTemplate, error)
	Delete(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) (*models.TimetableTemplate, error)
	Deactivate(ctx context.Context, id string) (*models.TimetableTemplate, error)
}

// TimetableTemplateHandler exposes weekly template endpoints.
type TimetableTemplateHandler struct {
	service timetableTemplateService
	logger  *zap.Logger
}

// NewTimetableTemplateHandler constructs the handler.
func NewTimetableTemplateHandler(svc *service.TimetableTemplateService, logger *zap.Logger) *TimetableTemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableTemplateHandler{service: svc, logger: logger}
}

// Create godoc
// @Summary Create timetable template
// @Description New templates start inactive.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimetableTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable-templates [post]
func (h *TimetableTemplateHandler) Create(c *gin.Context) {
	var req dto.CreateTimetableTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	tmpl, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tmpl)
}

// List godoc
// @Summary List timetable templates of a branch and academic year
// @Tags Timetable
// @Produce json
// @Param branchId query string true "Branch ID"
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /timetable-templates [get]
func (h *TimetableTemplateHandler) List(c *gin.Context) {
	var query dto.TimetableTemplateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	templates, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Get godoc
// @Summary Get timetable template
// @Tags Timetable
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable-templates/{id} [get]
func (h *TimetableTemplateHandler) Get(c *gin.Context) {
	tmpl, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tmpl, nil)
}

// Update godoc
// @Summary Update timetable template
// @Description Rejected with 409 once lessons were generated from the template.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.UpdateTimetableTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable-templates/{id} [put]
func (h *TimetableTemplateHandler) Update(c *gin.Context) {
	var req dto.UpdateTimetableTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	tmpl, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tmpl, nil)
}

// Delete godoc
// @Summary Delete timetable template
// @Tags Timetable
// @Param id path string true "Template ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /timetable-templates/{id} [delete]
func (h *TimetableTemplateHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Activate godoc
// @Summary Activate timetable template
// @Description Deactivates the previously active template of the same branch and academic year.
// @Tags Timetable
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable-templates/{id}/activate [post]
func (h *TimetableTemplateHandler) Activate(c *gin.Context) {
	tmpl, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("template activation requested", append(actorFields(c), zap.String("template_id", tmpl.ID))...)
	response.JSON(c, http.StatusOK, tmpl, nil)
}

// Deactivate godoc
// @Summary Deactivate timetable template
// @Tags Timetable
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /timetable-templates/{id}/deactivate [post]
func (h *TimetableTemplateHandler) Deactivate(c *gin.Context) {
	tmpl, err := h.service.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tmpl, nil)
}
