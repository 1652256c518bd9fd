package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
	"ExoScan/internal/domain/service"
	"ExoScan/internal/service/metrics"
	"ExoScan/internal/service/ratelimit"
	"ExoScan/internal/usecase"
	xhttp "ExoScan/pkg/http"
	xlogger "ExoScan/pkg/logger"
	"ExoScan/pkg/util"
)

const defaultHistorySpan = 24 * time.Hour

// PredictHandler serves the prediction API. The jobs, history and limiter
// dependencies are optional; their routes are only registered when set.
type PredictHandler struct {
	logger    *xlogger.Logger
	evaluator service.Evaluator
	jobs      *usecase.JobService
	history   domrepo.HistoryStore
	limiter   *ratelimit.Limiter
}

type PredictHandlerOption func(*PredictHandler)

func WithJobs(jobs *usecase.JobService) PredictHandlerOption {
	return func(h *PredictHandler) { h.jobs = jobs }
}

func WithHistoryStore(store domrepo.HistoryStore) PredictHandlerOption {
	return func(h *PredictHandler) { h.history = store }
}

func WithRateLimiter(l *ratelimit.Limiter) PredictHandlerOption {
	return func(h *PredictHandler) { h.limiter = l }
}

func NewPredictHandler(logger *xlogger.Logger, evaluator service.Evaluator, opts ...PredictHandlerOption) *PredictHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &PredictHandler{logger: logger, evaluator: evaluator}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PredictHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	var limited []echo.MiddlewareFunc
	if h.limiter != nil {
		limited = append(limited, ratelimit.Middleware(h.limiter))
	}

	g.POST("/predict", h.Predict, limited...)
	g.GET("/health", h.Health)
	if h.history != nil {
		g.GET("/history", h.History)
	}
	if h.jobs != nil {
		g.POST("/predict/jobs", h.SubmitJob, limited...)
		g.GET("/predict/jobs/:id", h.GetJob)
	}
}

func (h *PredictHandler) Predict(c echo.Context) error {
	const endpoint = "predict"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Fail(endpoint, string(models.ErrInvalidInput))
		return invalidRequest(c, verr)
	}

	res := h.evaluator.Evaluate(c.Request().Context(), req.Data, req.Source)
	if res.Err != nil {
		metrics.Fail(endpoint, string(res.Err.Kind))
		return xhttp.ErrorResponse(c, res.Err.Kind.HTTPStatus(), string(res.Err.Kind), res.Err.Message, res.Metadata)
	}
	return xhttp.SuccessResponse(c, models.PredictResponse{Predictions: res.Predictions, Metadata: res.Metadata})
}

func (h *PredictHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.evaluator.Health(c.Request().Context()))
}

func (h *PredictHandler) History(c echo.Context) error {
	const endpoint = "history"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := util.ParseRange(req.From, req.To, time.Now().UTC(), defaultHistorySpan)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	recs, err := h.history.Recent(c.Request().Context(), from, to, req.Limit)
	if err != nil {
		metrics.Fail(endpoint, "ERR_STORE")
		h.logger.Error("history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("history store unavailable"))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *PredictHandler) SubmitJob(c echo.Context) error {
	const endpoint = "submit_job"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return invalidRequest(c, verr)
	}
	job, err := h.jobs.Submit(c.Request().Context(), req.Data, req.Source)
	if err != nil {
		metrics.Fail(endpoint, "ERR_QUEUE")
		h.logger.Error("job submit failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue unavailable"))
	}
	return xhttp.AcceptedResponse(c, job)
}

func (h *PredictHandler) GetJob(c echo.Context) error {
	req := &models.JobStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.Get(c.Request().Context(), req.ID)
	if errors.Is(err, usecase.ErrJobNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", req.ID))
	}
	if err != nil {
		h.logger.Error("job lookup failed", xlogger.String("job_id", req.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job store unavailable"))
	}
	return xhttp.SuccessResponse(c, job)
}

// invalidRequest reports a malformed envelope with the taxonomy's input code.
func invalidRequest(c echo.Context, verr []xhttp.ValidationError) error {
	msg := "invalid request"
	if len(verr) > 0 && verr[0].Message != "" {
		msg = verr[0].Message
	}
	return xhttp.ErrorResponse(c, models.ErrInvalidInput.HTTPStatus(), string(models.ErrInvalidInput), msg, nil)
}
