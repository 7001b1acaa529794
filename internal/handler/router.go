package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
)

// Handlers groups the API handlers mounted under the API prefix.
type Handlers struct {
	Templates *TimetableTemplateHandler
	Slots     *TimetableSlotHandler
	Lessons   *LessonHandler
	Calendar  *CalendarPolicyHandler
	Metrics   *MetricsHandler
}

// RegisterRoutes mounts every authenticated endpoint on group. Reads need any valid token,
// writes need ADMIN or SUPERADMIN.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, auth *service.AuthService) {
	group.Use(middleware.JWT(auth))
	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	templates := group.Group("/timetable-templates")
	templates.GET("", h.Templates.List)
	templates.POST("", admin, h.Templates.Create)
	templates.GET("/:id", h.Templates.Get)
	templates.PUT("/:id", admin, h.Templates.Update)
	templates.DELETE("/:id", admin, h.Templates.Delete)
	templates.POST("/:id/activate", admin, h.Templates.Activate)
	templates.POST("/:id/deactivate", admin, h.Templates.Deactivate)
	templates.GET("/:id/slots", h.Slots.List)
	templates.POST("/:id/slots", admin, h.Slots.Add)
	templates.POST("/:id/slots/bulk", admin, h.Slots.Bulk)
	templates.POST("/:id/slots/check", h.Slots.Check)
	templates.POST("/:id/generate", admin, h.Lessons.Generate)

	slots := group.Group("/timetable-slots")
	slots.PUT("/:id", admin, h.Slots.Update)
	slots.DELETE("/:id", admin, h.Slots.Delete)

	lessons := group.Group("/lessons")
	lessons.GET("", h.Lessons.List)
	lessons.POST("", admin, h.Lessons.Create)
	lessons.GET("/weekly", h.Lessons.Weekly)
	lessons.GET("/calendar.ics", h.Lessons.Calendar)
	lessons.GET("/by-slot", h.Lessons.BySlot)
	lessons.GET("/:id", h.Lessons.Get)
	lessons.PATCH("/:id/status", admin, h.Lessons.UpdateStatus)

	branches := group.Group("/branches")
	branches.GET("/:id/calendar-policy", h.Calendar.Get)
	branches.POST("/:id/calendar-policy/holidays/import", admin, h.Calendar.ImportHolidays)

	group.GET("/system/metrics", admin, h.Metrics.Snapshot)
}
