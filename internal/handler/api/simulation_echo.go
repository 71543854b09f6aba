package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinSim/internal/domain/models"
	"FinSim/internal/service/metrics"
	"FinSim/internal/service/ratelimit"
	xhttp "FinSim/pkg/http"
	xlogger "FinSim/pkg/logger"
	"FinSim/pkg/util"

	"github.com/labstack/echo/v4"
)

// Simulations is the use-case surface the handler needs.
type Simulations interface {
	RunSimulation(ctx context.Context, req *models.RunSimulationRequest) (*models.SimulationResult, error)
	SubmitSimulation(ctx context.Context, req *models.RunSimulationRequest) (*models.SimulationResult, error)
	GetResult(ctx context.Context, id string) (*models.SimulationResult, error)
	ListResults(ctx context.Context) ([]models.SimulationListItem, error)
	LiveSignal(ctx context.Context, req *models.LiveSignalRequest) (*models.LiveSignal, error)
	Strategies() []string
}

// SimulationEchoHandler serves /api/simulation.
type SimulationEchoHandler struct {
	logger  *xlogger.Logger
	sims    Simulations
	rl      *ratelimit.Limiter
	liveRPS float64
}

func NewSimulationEchoHandler(logger *xlogger.Logger, sims Simulations, rl *ratelimit.Limiter, liveRPS int) *SimulationEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	if rl == nil {
		rl = ratelimit.New()
	}
	if liveRPS <= 0 {
		liveRPS = 5
	}
	return &SimulationEchoHandler{logger: logger, sims: sims, rl: rl, liveRPS: float64(liveRPS)}
}

func (h *SimulationEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/simulation")
	g.POST("/run", h.Run)
	g.GET("/results/:id", h.Result)
	g.GET("/results", h.Results)
	g.GET("/signal/live", h.LiveSignal)
	g.GET("/strategies", h.Strategies)
	g.GET("/health", h.Health)
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Run executes a backtest. async=true queues it and returns the pending record.
func (h *SimulationEchoHandler) Run(c echo.Context) error {
	defer observe("run", time.Now())

	req := &models.RunSimulationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	var (
		res *models.SimulationResult
		err error
	)
	if req.Async {
		res, err = h.sims.SubmitSimulation(ctx, req)
	} else {
		res, err = h.sims.RunSimulation(ctx, req)
	}
	if err != nil {
		return h.fail(c, "run", err)
	}
	return xhttp.AcceptedResponse(c, res)
}

func (h *SimulationEchoHandler) Result(c echo.Context) error {
	defer observe("result", time.Now())

	req := &models.GetSimulationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.sims.GetResult(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "result", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SimulationEchoHandler) Results(c echo.Context) error {
	defer observe("results", time.Now())

	items, err := h.sims.ListResults(c.Request().Context())
	if err != nil {
		return h.fail(c, "results", err)
	}
	total := int64(len(items))
	// ?limit=N keeps the first N rows; total still counts everything.
	if limit := util.ParseIntDefault(c.QueryParam("limit"), 0); limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return xhttp.ListResponse(c, items, total)
}

func (h *SimulationEchoHandler) LiveSignal(c echo.Context) error {
	defer observe("live_signal", time.Now())

	if !h.rl.Allow(c.RealIP()+":live_signal", h.liveRPS, h.liveRPS) {
		metrics.APIRateLimited.WithLabelValues("live_signal").Inc()
		h.logger.Warn("live signal rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, []*xhttp.AppError{
			xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many live signal requests", http.StatusTooManyRequests),
		})
	}

	req := &models.LiveSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.sims.LiveSignal(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "live_signal", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SimulationEchoHandler) Strategies(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string][]string{"strategies": h.sims.Strategies()})
}

func (h *SimulationEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// fail maps use-case errors onto API errors.
func (h *SimulationEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("simulation endpoint error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrSimulationNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrInvalidRange):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrInvalidParams),
		errors.Is(err, models.ErrUnknownStrategy),
		errors.Is(err, models.ErrNoData):
		return xhttp.NewAppError("ERR_UNPROCESSABLE", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	default:
		return xhttp.InternalErrorf("simulation error: %v", err).WithError(err)
	}
}
