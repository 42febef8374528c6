// Package web provides the HTTP handlers for the automation REST API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/registry"
	"github.com/outflowhq/outflow/pkg/services"
)

type APIHandlers struct {
	flowService       *services.Flow
	automationService *services.Automation
	scheduleService   *services.Schedule
	validator         *validator.Validate
	registry          *registry.Registry
}

func NewAPIHandlers(
	flowService *services.Flow,
	automationService *services.Automation,
	scheduleService *services.Schedule,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		flowService:       flowService,
		automationService: automationService,
		scheduleService:   scheduleService,
		validator:         validator,
		registry:          registry,
	}
}

// Register mounts every API route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	app.Post("/flows", h.CreateFlow)
	app.Get("/flows/:id", h.GetFlow)
	app.Put("/flows/:id", h.UpdateFlow)
	app.Get("/flows/:id/versions/:version", h.GetFlowVersion)
	app.Post("/flows/test", h.TestFlow)

	app.Post("/automations", h.CreateAutomation)
	app.Get("/automations/:id", h.GetAutomation)
	app.Put("/automations/:id", h.UpdateAutomation)
	app.Delete("/automations/:id", h.DeleteAutomation)
	app.Post("/automations/:id/run", h.RunAutomation)

	app.Post("/schedules", h.CreateSchedule)
	app.Get("/schedules/:id", h.GetSchedule)
	app.Put("/schedules/:id", h.UpdateSchedule)
	app.Delete("/schedules/:id", h.DeleteSchedule)
	app.Get("/schedules/:id/preview", h.PreviewSchedule)
	app.Post("/schedules/:id/exceptions", h.CreateException)
	app.Delete("/schedules/:id/exceptions/:exceptionId", h.DeleteException)

	app.Get("/executions/:id", h.GetExecution)
	app.Post("/executions/:id/cancel", h.CancelExecution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"node_types": h.registry.Types(),
		"timestamp":  time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, warnings, err := h.flowService.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(FlowResponse{Flow: created, Warnings: warnings})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flowDef, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flowDef)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, warnings, err := h.flowService.Update(c.Context(), c.Params("id"), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(FlowResponse{Flow: updated, Warnings: warnings})
}

func (h *APIHandlers) GetFlowVersion(c fiber.Ctx) error {
	version, err := strconv.Atoi(c.Params("version"))
	if err != nil {
		return badRequest(c, "Version must be an integer")
	}

	flowDef, err := h.flowService.FetchVersion(c.Context(), c.Params("id"), version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flowDef)
}

func (h *APIHandlers) TestFlow(c fiber.Ctx) error {
	var req services.TestRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.flowService.Test(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.automationService.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.automationService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.automationService.Update(c.Context(), c.Params("id"), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	if err := h.automationService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunAutomation(c fiber.Ctx) error {
	execution, err := h.automationService.RunNow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.scheduleFromRequest(c, req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.scheduleService.Create(c.Context(), schedule)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	schedule, err := h.scheduleService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.scheduleFromRequest(c, req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.scheduleService.Update(c.Context(), c.Params("id"), schedule)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.scheduleService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PreviewSchedule(c fiber.Ctx) error {
	count := 5
	if countStr := c.Query("count"); countStr != "" {
		parsed, err := strconv.Atoi(countStr)
		if err != nil {
			return badRequest(c, "Count must be an integer")
		}

		count = parsed
	}

	preview, err := h.scheduleService.Preview(c.Context(), c.Params("id"), count)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"occurrences": preview})
}

func (h *APIHandlers) CreateException(c fiber.Ctx) error {
	var req CreateExceptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	exception, err := h.exceptionFromRequest(c, req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.scheduleService.AddException(c.Context(), exception)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteException(c fiber.Ctx) error {
	err := h.scheduleService.RemoveException(c.Context(), c.Params("id"), c.Params("exceptionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, recipients, err := h.automationService.ExecutionStatus(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ExecutionResponse{Execution: execution, Recipients: recipients})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.automationService.CancelExecution(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) scheduleFromRequest(c fiber.Ctx, req CreateScheduleRequest) (*models.Schedule, error) {
	schedule := &models.Schedule{
		AutomationID: req.AutomationID,
		Type:         req.Type,
		Config:       req.Config,
		SkipWeekends: req.SkipWeekends,
		SkipHolidays: req.SkipHolidays,
		Region:       req.Region,
	}

	if req.StartDate != "" {
		start, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return nil, err
		}

		schedule.StartDate = start
	}

	return schedule, nil
}

func (h *APIHandlers) exceptionFromRequest(c fiber.Ctx, req CreateExceptionRequest) (*models.Exception, error) {
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		return nil, err
	}

	end, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		return nil, err
	}

	exception := &models.Exception{
		ScheduleID: c.Params("id"),
		Type:       req.Type,
		StartDate:  start,
		EndDate:    end,
		Override:   req.Override,
	}

	if req.RescheduledTo != "" {
		to, err := time.Parse(time.RFC3339, req.RescheduledTo)
		if err != nil {
			return nil, err
		}

		exception.RescheduledTo = &to
	}

	return exception, nil
}
