package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"FinSim/internal/domain/models"
	"FinSim/pkg/queue"
)

// BacktestJobType is the queue message type of a submitted simulation.
const BacktestJobType = "simulation.run"

// BacktestPayload is the queued form of an asynchronous run.
type BacktestPayload struct {
	SimID   string                      `json:"sim_id"`
	Request models.RunSimulationRequest `json:"request"`
}

// BacktestJob executes queued simulations on the worker side.
type BacktestJob struct {
	sims *SimulationService
}

func NewBacktestJob(sims *SimulationService) *BacktestJob {
	return &BacktestJob{sims: sims}
}

func (j *BacktestJob) Name() string { return "backtest" }

func (j *BacktestJob) Type() string { return BacktestJobType }

// Handle runs the simulation. Errors are returned for the queue to retry;
// invalid requests are recorded as failed and not retried.
func (j *BacktestJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[BacktestPayload](payload)
	if err != nil {
		return err
	}
	if p.SimID == "" {
		return fmt.Errorf("backtest job: missing sim_id")
	}
	return j.sims.ExecuteQueued(ctx, p.SimID, &p.Request)
}

var _ queue.Job = (*BacktestJob)(nil)
