package api

import (
	"context"
	"time"

	"Socially/internal/domain/models"
	xhttp "Socially/pkg/http"
	xlogger "Socially/pkg/logger"
	"Socially/pkg/queue"
	"Socially/pkg/util"

	"github.com/labstack/echo/v4"
)

// QueueHandler exposes read-only queue state for operators.
type QueueHandler struct {
	logger   *xlogger.Logger
	registry *queue.Registry
}

func NewQueueHandler(logger *xlogger.Logger, registry *queue.Registry) *QueueHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &QueueHandler{logger: logger.Named("api.queues"), registry: registry}
}

func (h *QueueHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/queues")
	g.GET("", h.Overview)
	g.GET("/:queue/dead", h.DeadLetters)
}

type queuesOverview struct {
	Processors map[string][]string `json:"processors"`
	Stats      []queue.Stats       `json:"stats"`
}

func (h *QueueHandler) Overview(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	stats, err := h.registry.Stats(ctx)
	if err != nil {
		h.logger.Error("queue stats failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("Queue broker unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, &queuesOverview{Processors: h.registry.Audit(), Stats: stats})
}

func (h *QueueHandler) DeadLetters(c echo.Context) error {
	req := &models.DeadLettersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var since time.Time
	if req.Since != "" {
		t, ok := util.ParseTime(req.Since)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("Invalid since").WithParam("since", req.Since))
		}
		since = t
	}

	q, ok := h.registry.Queue(req.Queue)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("Queue %s not found", req.Queue))
	}

	jobs, err := q.DeadLetters(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("dead letters failed", xlogger.Queue(req.Queue), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("Queue broker unavailable").WithError(err))
	}

	rows := jobs[:0]
	for _, j := range jobs {
		if since.IsZero() || !diedAt(j).Before(since) {
			rows = append(rows, j)
		}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// diedAt falls back to CreatedAt for jobs buried before DiedAt was recorded.
func diedAt(j *queue.Job) time.Time {
	if j.DiedAt.IsZero() {
		return j.CreatedAt
	}
	return j.DiedAt
}
