package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableSlotService interface {
	ListSlots(ctx context.Context, templateID string) ([]models.TimetableSlot, error)
	AddSlot(ctx context.Context, templateID string, req dto.TimetableSlotRequest) (*models.TimetableSlot, error)
	UpdateSlot(ctx context.Context, slotID string, req dto.TimetableSlotRequest) (*models.TimetableSlot, error)
	RemoveSlot(ctx context.Context, slotID string) error
	CheckSlot(ctx context.Context, templateID string, req dto.TimetableSlotRequest) ([]models.SlotConflict, error)
	BulkAddSlots(ctx context.Context, templateID string, req dto.BulkTimetableSlotRequest) ([]models.TimetableSlot, error)
}

// TimetableSlotHandler exposes slot editing endpoints.
type TimetableSlotHandler struct {
	service timetableSlotService
}

// NewTimetableSlotHandler constructs the handler.
func NewTimetableSlotHandler(svc *service.TimetableSlotService) *TimetableSlotHandler {
	return &TimetableSlotHandler{service: svc}
}

// List godoc
// @Summary List slots of a template
// @Tags Timetable
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /timetable-templates/{id}/slots [get]
func (h *TimetableSlotHandler) List(c *gin.Context) {
	slots, err := h.service.ListSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Add godoc
// @Summary Add slot to a template
// @Description Rejected with 409 SCHEDULE_CONFLICT when a teacher or room would be double-booked.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.TimetableSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable-templates/{id}/slots [post]
func (h *TimetableSlotHandler) Add(c *gin.Context) {
	var req dto.TimetableSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.service.AddSlot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Bulk godoc
// @Summary Import several slots at once
// @Description All candidates are written or none; rejected candidates are listed by index.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.BulkTimetableSlotRequest true "Slots payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable-templates/{id}/slots/bulk [post]
func (h *TimetableSlotHandler) Bulk(c *gin.Context) {
	var req dto.BulkTimetableSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk slot payload"))
		return
	}
	slots, err := h.service.BulkAddSlots(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slots)
}

// Check godoc
// @Summary Dry-run conflict check for a candidate slot
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.TimetableSlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Router /timetable-templates/{id}/slots/check [post]
func (h *TimetableSlotHandler) Check(c *gin.Context) {
	var req dto.TimetableSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	conflicts, err := h.service.CheckSlot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SlotCheckResponse{OK: len(conflicts) == 0, Conflicts: conflicts}, nil)
}

// Update godoc
// @Summary Update a slot
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.TimetableSlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable-slots/{id} [put]
func (h *TimetableSlotHandler) Update(c *gin.Context) {
	var req dto.TimetableSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.service.UpdateSlot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Remove a slot
// @Description Lessons already generated from the slot are kept.
// @Tags Timetable
// @Param id path string true "Slot ID"
// @Success 204
// @Router /timetable-slots/{id} [delete]
func (h *TimetableSlotHandler) Delete(c *gin.Context) {
	if err := h.service.RemoveSlot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
