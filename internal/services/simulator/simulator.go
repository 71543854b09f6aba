package simulator

import (
	"FinSim/internal/domain/models"
)

// SlippagePips is applied against the position on stop exits and recorded on
// every trade.
const SlippagePips = 1.0

// TieBreak decides which level wins when one bar touches both target and stop.
type TieBreak int

const (
	// TargetFirst assumes the favorable level traded first inside the bar.
	TargetFirst TieBreak = iota
	// StopFirst is the pessimistic reading of the same bar.
	StopFirst
)

func (t TieBreak) String() string {
	if t == StopFirst {
		return "stop_first"
	}
	return "target_first"
}

// Simulator resolves signals against the bars that follow them.
type Simulator struct {
	tieBreak TieBreak
	rewardR  float64
}

type Option func(*Simulator)

// WithTieBreak sets the intrabar policy. The default is TargetFirst.
func WithTieBreak(t TieBreak) Option {
	return func(s *Simulator) { s.tieBreak = t }
}

// WithRewardMultiple overrides the R credited on a target hit (default 3).
func WithRewardMultiple(r float64) Option {
	return func(s *Simulator) {
		if r > 0 {
			s.rewardR = r
		}
	}
}

func New(opts ...Option) *Simulator {
	s := &Simulator{tieBreak: TargetFirst, rewardR: 3.0}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Simulate walks remaining bars in order until the target or stop is touched.
// A signal that touches neither expires at entry with zero P&L.
func (s *Simulator) Simulate(sig models.TradeSignal, remaining []models.Bar, pipValue float64) models.TradeRecord {
	for _, bar := range remaining {
		hitTarget, hitStop := s.touches(sig, bar)
		if hitTarget && hitStop {
			if s.tieBreak == StopFirst {
				hitTarget = false
			} else {
				hitStop = false
			}
		}
		switch {
		case hitTarget:
			return models.TradeRecord{
				Signal:    sig,
				Outcome:   models.OutcomeTarget,
				ExitPrice: sig.Target,
				ExitTime:  bar.Timestamp,
				PnLR:      s.rewardR,
				PnLUSD:    sig.Risk * pipValue * s.rewardR,
				Slippage:  SlippagePips,
			}
		case hitStop:
			exit := sig.Stop + SlippagePips
			if sig.Side == models.SideLong {
				exit = sig.Stop - SlippagePips
			}
			return models.TradeRecord{
				Signal:    sig,
				Outcome:   models.OutcomeStop,
				ExitPrice: exit,
				ExitTime:  bar.Timestamp,
				PnLR:      -1.0,
				PnLUSD:    -sig.Risk * pipValue,
				Slippage:  SlippagePips,
			}
		}
	}

	return models.TradeRecord{
		Signal:    sig,
		Outcome:   models.OutcomeExpired,
		ExitPrice: sig.Entry,
		Slippage:  SlippagePips,
	}
}

func (s *Simulator) touches(sig models.TradeSignal, bar models.Bar) (target, stop bool) {
	if sig.Side == models.SideShort {
		return bar.Low <= sig.Target, bar.High >= sig.Stop
	}
	return bar.High >= sig.Target, bar.Low <= sig.Stop
}

// Simulate resolves a signal with the default target-first simulator.
func Simulate(sig models.TradeSignal, remaining []models.Bar, pipValue float64) models.TradeRecord {
	return New().Simulate(sig, remaining, pipValue)
}
