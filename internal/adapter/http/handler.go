package http

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/usecase"
)

type Handler struct {
	jobs     *usecase.JobService
	progress *usecase.ProgressService
	reports  *usecase.ReportService
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewHandler(jobs *usecase.JobService, progress *usecase.ProgressService, reports *usecase.ReportService) *Handler {
	return &Handler{
		jobs:     jobs,
		progress: progress,
		reports:  reports,
		validate: validator.New(),
		log:      zap.S().Named("http"),
	}
}

// Register mounts every route on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jobs := app.Group("/jobs")
	jobs.Post("/", h.Enqueue)
	jobs.Get("/", h.ListJobs)
	jobs.Get("/stats", h.Stats)
	jobs.Get("/:id", h.GetJob)
	jobs.Post("/:id/retry", h.RetryJob)
	jobs.Get("/:id/report", h.ReportHTML)
	jobs.Get("/:id/report.pdf", h.ReportPDF)

	app.Post("/subjects/:id/progress", h.SyncProgress)
}

type enqueueRequest struct {
	SubjectID     string `json:"subjectId" validate:"required,uuid"`
	RequirementID string `json:"requirementId" validate:"omitempty,uuid"`
	Backend       string `json:"backend" validate:"omitempty,max=64"`
}

func (h *Handler) Enqueue(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	nj := domain.NewJob{SubjectID: uuid.MustParse(req.SubjectID), BackendKey: req.Backend}
	if req.RequirementID != "" {
		rid := uuid.MustParse(req.RequirementID)
		nj.RequirementID = &rid
	}
	job, err := h.jobs.Enqueue(c.UserContext(), nj)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (h *Handler) ListJobs(c *fiber.Ctx) error {
	var f domain.JobFilter
	if s := c.Query("status"); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			return badRequest(c, "unknown status "+strconv.Quote(s))
		}
		f.Status = &status
	}
	if s := c.Query("subject_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return badRequest(c, "invalid subject_id")
		}
		f.SubjectID = &id
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return badRequest(c, "invalid limit")
		}
		f.Limit = n
	}

	jobs, err := h.jobs.List(c.UserContext(), f)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	counts, err := h.jobs.Stats(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(counts)
}

func (h *Handler) GetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	job, err := h.jobs.Get(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(job)
}

func (h *Handler) RetryJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	job, err := h.jobs.Retry(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(job)
}

func (h *Handler) ReportHTML(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	html, err := h.reports.HTML(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	c.Type("html", "utf-8")
	return c.SendString(html)
}

func (h *Handler) ReportPDF(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	pdf, err := h.reports.PDF(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="analysis-`+id.String()+`.pdf"`)
	return c.Send(pdf)
}

type progressRequest struct {
	StepID        string   `json:"stepId" validate:"required,max=128"`
	Completed     *bool    `json:"completed" validate:"required"`
	CompletionSet []string `json:"completionSet" validate:"max=500,dive,max=128"`
}

func (h *Handler) SyncProgress(c *fiber.Ctx) error {
	subjectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid subject id")
	}
	var req progressRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	snap, err := h.progress.SyncProgress(c.UserContext(), subjectID, req.StepID, *req.Completed, req.CompletionSet)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(snap)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// writeError maps a domain error kind to a status code. Untyped errors
// are logged and answered with a generic message.
func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.log.Errorw("request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	status := fiber.StatusInternalServerError
	switch de.Kind {
	case domain.KindNotFound:
		status = fiber.StatusNotFound
	case domain.KindInvalidTransition:
		status = fiber.StatusConflict
	case domain.KindConfiguration:
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{"error": de.Message, "kind": de.Kind})
}
