package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// maxCalendarUpload caps imported .ics files.
const maxCalendarUpload = 2 << 20

type calendarPolicyService interface {
	Get(ctx context.Context, branchID string) (*models.CalendarPolicy, error)
	ImportHolidays(ctx context.Context, branchID string, r io.Reader) (int, int, *models.CalendarPolicy, error)
}

// CalendarPolicyHandler exposes branch calendar policy endpoints.
type CalendarPolicyHandler struct {
	service calendarPolicyService
}

// NewCalendarPolicyHandler constructs the handler.
func NewCalendarPolicyHandler(svc *service.CalendarPolicyService) *CalendarPolicyHandler {
	return &CalendarPolicyHandler{service: svc}
}

// Get godoc
// @Summary Read the calendar policy of a branch
// @Tags Calendar
// @Produce json
// @Param id path string true "Branch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /branches/{id}/calendar-policy [get]
func (h *CalendarPolicyHandler) Get(c *gin.Context) {
	policy, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// ImportHolidays godoc
// @Summary Import holidays from an iCalendar file
// @Description Accepts a multipart "file" field or a raw text/calendar body. Every date covered by an event becomes a holiday.
// @Tags Calendar
// @Accept multipart/form-data
// @Accept text/calendar
// @Produce json
// @Param id path string true "Branch ID"
// @Param file formData file false "iCalendar file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /branches/{id}/calendar-policy/holidays/import [post]
func (h *CalendarPolicyHandler) ImportHolidays(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCalendarUpload)

	var reader io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read uploaded file"))
			return
		}
		defer file.Close()
		reader = file
	}

	branchID := c.Param("id")
	parsed, added, policy, err := h.service.ImportHolidays(c.Request.Context(), branchID, reader)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.HolidayImportResponse{
		BranchID: branchID,
		Parsed:   parsed,
		Added:    added,
		Total:    len(policy.Holidays),
	}, nil)
}
