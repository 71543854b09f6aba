package risk

import (
	"fmt"
	"sync"

	"FinSim/internal/domain/models"
	"FinSim/pkg/logger"
)

// TripFunc observes a breaker trip. Errors and panics are logged and
// swallowed so one observer cannot block the others.
type TripFunc func(reason string) error

// Limits are the thresholds the breaker enforces.
type Limits struct {
	MaxDailyLosses        int
	MaxDailyDrawdownPct   float64
	MaxMonthlyDrawdownPct float64
}

// LimitsFromConfig extracts the breaker thresholds from a strategy config.
func LimitsFromConfig(cfg models.StrategyConfig) Limits {
	return Limits{
		MaxDailyLosses:        cfg.MaxDailyLosses,
		MaxDailyDrawdownPct:   cfg.MaxDailyDrawdownPct,
		MaxMonthlyDrawdownPct: cfg.MaxMonthlyDrawdownPct,
	}
}

// State is a point-in-time copy of the breaker counters.
type State struct {
	DailyLosses        int     `json:"daily_losses"`
	DailyDrawdownPct   float64 `json:"daily_drawdown_pct"`
	MonthlyDrawdownPct float64 `json:"monthly_drawdown_pct"`
	Tripped            bool    `json:"tripped"`
	Reason             string  `json:"reason,omitempty"`
}

// CircuitBreaker halts signal acceptance once daily losses or drawdowns cross
// their limits. A trip sticks until NewDay. One breaker belongs to one run.
type CircuitBreaker struct {
	mu        sync.Mutex
	limits    Limits
	state     State
	observers []TripFunc
	logger    *logger.Logger
}

func NewCircuitBreaker(limits Limits, log *logger.Logger) *CircuitBreaker {
	if log == nil {
		log = logger.Nop()
	}
	return &CircuitBreaker{limits: limits, logger: log}
}

// OnTrip registers an observer.
func (cb *CircuitBreaker) OnTrip(fn TripFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.observers = append(cb.observers, fn)
}

// RecordLoss adds one loss of pct (fraction of equity) and reports whether this
// call tripped the breaker.
func (cb *CircuitBreaker) RecordLoss(pct float64) bool {
	cb.mu.Lock()
	cb.state.DailyLosses++
	cb.state.DailyDrawdownPct += pct
	cb.state.MonthlyDrawdownPct += pct
	reason, tripped := cb.checkLocked()
	observers := cb.observers
	cb.mu.Unlock()

	if tripped {
		cb.notify(reason, observers)
	}
	return tripped
}

// RecordWin relieves intraday drawdown only. It never resets the loss counter
// or the monthly accumulator and never clears a trip.
func (cb *CircuitBreaker) RecordWin(pct float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.DailyDrawdownPct -= pct
	if cb.state.DailyDrawdownPct < 0 {
		cb.state.DailyDrawdownPct = 0
	}
}

// Check evaluates the limits and reports whether the breaker tripped now.
// An already tripped breaker returns false.
func (cb *CircuitBreaker) Check() bool {
	cb.mu.Lock()
	reason, tripped := cb.checkLocked()
	observers := cb.observers
	cb.mu.Unlock()

	if tripped {
		cb.notify(reason, observers)
	}
	return tripped
}

func (cb *CircuitBreaker) checkLocked() (string, bool) {
	if cb.state.Tripped {
		return "", false
	}

	var reason string
	switch {
	case cb.state.DailyLosses >= cb.limits.MaxDailyLosses:
		reason = fmt.Sprintf("Daily loss limit reached: %d consecutive losses (max=%d)",
			cb.state.DailyLosses, cb.limits.MaxDailyLosses)
	case cb.state.DailyDrawdownPct >= cb.limits.MaxDailyDrawdownPct:
		reason = fmt.Sprintf("Intraday drawdown limit: %.2f%% (max=%.2f%%)",
			cb.state.DailyDrawdownPct*100, cb.limits.MaxDailyDrawdownPct*100)
	case cb.state.MonthlyDrawdownPct >= cb.limits.MaxMonthlyDrawdownPct:
		reason = fmt.Sprintf("Monthly drawdown limit: %.2f%% (max=%.2f%%)",
			cb.state.MonthlyDrawdownPct*100, cb.limits.MaxMonthlyDrawdownPct*100)
	default:
		return "", false
	}

	cb.state.Tripped = true
	cb.state.Reason = reason
	return reason, true
}

func (cb *CircuitBreaker) notify(reason string, observers []TripFunc) {
	cb.logger.Warn("circuit breaker tripped", logger.String("reason", reason))
	for i, fn := range observers {
		if err := safeCall(fn, reason); err != nil {
			cb.logger.Error("circuit breaker observer failed",
				logger.Int("observer", i),
				logger.Error(err),
			)
		}
	}
}

func safeCall(fn TripFunc, reason string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn(reason)
}

// NewDay clears the daily counters and any trip. Monthly drawdown persists.
func (cb *CircuitBreaker) NewDay() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.DailyLosses = 0
	cb.state.DailyDrawdownPct = 0
	cb.state.Tripped = false
	cb.state.Reason = ""
}

// NewMonth performs a NewDay and clears the monthly accumulator.
func (cb *CircuitBreaker) NewMonth() {
	cb.NewDay()
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.MonthlyDrawdownPct = 0
}

func (cb *CircuitBreaker) Tripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.Tripped
}

func (cb *CircuitBreaker) Reason() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.Reason
}

// Snapshot returns a copy of the counters.
func (cb *CircuitBreaker) Snapshot() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
