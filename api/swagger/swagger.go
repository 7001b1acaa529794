package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Timetable API",
        "description": "Timetable templates, weekly slots and dated lesson generation.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Timetable", "description": "Templates and weekly slots"},
        {"name": "Lessons", "description": "Dated lesson instances"},
        {"name": "Calendar", "description": "Branch calendar policy"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/timetable-templates": {
            "get": {
                "tags": ["Timetable"],
                "summary": "List templates of a branch and academic year",
                "parameters": [
                    {"name": "branchId", "in": "query", "required": true, "type": "string"},
                    {"name": "academicYearId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Timetable"],
                "summary": "Create a draft template",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTemplateRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable-templates/{id}": {
            "get": {"tags": ["Timetable"], "summary": "Get template", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}},
            "put": {"tags": ["Timetable"], "summary": "Update template", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "Template has generated lessons"}}},
            "delete": {"tags": ["Timetable"], "summary": "Delete template", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "Deleted"}, "409": {"description": "Template has generated lessons"}}}
        },
        "/timetable-templates/{id}/activate": {
            "post": {"tags": ["Timetable"], "summary": "Activate template, deactivating the previous one", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "Concurrent activation"}}}
        },
        "/timetable-templates/{id}/deactivate": {
            "post": {"tags": ["Timetable"], "summary": "Deactivate template", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/timetable-templates/{id}/slots": {
            "get": {"tags": ["Timetable"], "summary": "List slots of a template", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Timetable"], "summary": "Add slot", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}, "409": {"description": "Schedule conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/timetable-templates/{id}/slots/bulk": {
            "post": {"tags": ["Timetable"], "summary": "Add slots atomically", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid or duplicate positions"}, "409": {"description": "Schedule conflict"}}}
        },
        "/timetable-templates/{id}/slots/check": {
            "post": {"tags": ["Timetable"], "summary": "Dry-run conflict check", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/timetable-templates/{id}/generate": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Generate dated lessons for a week, month, quarter or range",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateLessonsRequest"}}
                ],
                "responses": {"200": {"description": "Generated"}, "202": {"description": "Queued"}, "400": {"description": "Invalid range or inactive template"}, "404": {"description": "Template not found"}, "409": {"description": "Collision or queue full"}}
            }
        },
        "/timetable-slots/{id}": {
            "put": {"tags": ["Timetable"], "summary": "Update slot", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "Schedule conflict"}}},
            "delete": {"tags": ["Timetable"], "summary": "Remove slot", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "Deleted"}}}
        },
        "/lessons": {
            "get": {
                "tags": ["Lessons"],
                "summary": "List lessons of a class in a date range",
                "parameters": [
                    {"name": "classId", "in": "query", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {"tags": ["Lessons"], "summary": "Create a manual lesson", "responses": {"201": {"description": "Created"}, "409": {"description": "Schedule conflict"}}}
        },
        "/lessons/weekly": {
            "get": {"tags": ["Lessons"], "summary": "Weekly grid of a class", "responses": {"200": {"description": "OK"}}}
        },
        "/lessons/calendar.ics": {
            "get": {"tags": ["Lessons"], "summary": "iCalendar export of a class", "produces": ["text/calendar"], "responses": {"200": {"description": "OK"}}}
        },
        "/lessons/by-slot": {
            "get": {"tags": ["Lessons"], "summary": "Find lesson by class subject, date and lesson number", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/lessons/{id}": {
            "get": {"tags": ["Lessons"], "summary": "Get lesson", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/lessons/{id}/status": {
            "patch": {"tags": ["Lessons"], "summary": "Change lesson status", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid transition"}, "409": {"description": "Concurrent update"}}}
        },
        "/branches/{id}/calendar-policy": {
            "get": {"tags": ["Calendar"], "summary": "Get calendar policy", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/branches/{id}/calendar-policy/holidays/import": {
            "post": {"tags": ["Calendar"], "summary": "Import holidays from an iCalendar file", "consumes": ["multipart/form-data", "text/calendar"], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/system/metrics": {
            "get": {"tags": ["System"], "summary": "Aggregated service metrics", "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "CreateTemplateRequest": {
            "type": "object",
            "properties": {
                "branchId": {"type": "string"},
                "academicYearId": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "effectiveFrom": {"type": "string", "format": "date"},
                "effectiveUntil": {"type": "string", "format": "date"}
            }
        },
        "GenerateLessonsRequest": {
            "type": "object",
            "properties": {
                "startDate": {"type": "string", "format": "date"},
                "endDate": {"type": "string", "format": "date"},
                "weekStart": {"type": "string", "format": "date"},
                "year": {"type": "integer"},
                "month": {"type": "integer"},
                "quarter": {"type": "integer"},
                "skipExisting": {"type": "boolean"},
                "async": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
