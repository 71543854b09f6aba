package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"FinSim/internal/domain/models"
	"FinSim/internal/services/indicators"
)

// ORBFVGName is the registry name of the opening-range / gap / engulfing strategy.
const ORBFVGName = "ORB_FVG_ENGULFING"

const (
	// indicatorWindow is how many trailing fine bars feed ATR and average volume.
	indicatorWindow = 20
	// premiumWickRatio tags a confirmation bar as a rejection pin.
	premiumWickRatio = 0.60
)

// ORBFVGEngine detects an opening-range breakout that leaves a fair value gap,
// waits for price to retest the gap and enters on an engulfing bar inside it.
//
// The engine is stateless; one value can serve concurrent sessions.
type ORBFVGEngine struct{}

func NewORBFVGEngine() *ORBFVGEngine { return &ORBFVGEngine{} }

func (e *ORBFVGEngine) Name() string { return ORBFVGName }

// sessionState is the scratch state of one Evaluate call.
type sessionState struct {
	orb       models.RangeLevel
	gap       *models.Gap
	confirmed bool
	countdown int
	breakout  bool
	direction models.Direction
	atr       float64
	avgVolume float64
}

// Evaluate runs the five phases over one session. m5[0] must be the opening
// coarse bar and m1 the session's fine bars in time order. It returns nil when
// no complete setup forms.
func (e *ORBFVGEngine) Evaluate(m5, m1 []models.Bar, equity float64, cfg models.StrategyConfig) *models.TradeSignal {
	if len(m5) == 0 || len(m1) == 0 {
		return nil
	}

	orb := DetectRange(m5[0], cfg.MinRangePips)
	if !orb.Valid {
		return nil
	}

	window := indicators.Tail(m1, indicatorWindow)
	st := sessionState{
		orb:       orb,
		atr:       indicators.ATR(window, indicators.DefaultATRPeriod),
		avgVolume: indicators.AverageVolume(window, indicators.DefaultVolumePeriod),
	}

	for idx, bar := range m1 {
		if st.gap == nil {
			// The breakout needs a predecessor and only the first one counts.
			if idx == 0 || st.breakout {
				continue
			}
			dir, ok := DetectBreakout(bar, orb, st.avgVolume, cfg)
			if !ok {
				continue
			}
			st.breakout = true
			st.direction = dir
			if idx >= 2 {
				if gap, ok := ComputeGap(m1[idx-2], bar, dir, st.atr, cfg); ok {
					st.gap = &gap
					st.countdown = cfg.WaitRetestMaxM1
				}
			}
			continue
		}

		if st.countdown <= 0 {
			return nil
		}
		st.countdown--

		if Invalidated(bar, *st.gap, orb) {
			return nil
		}
		if !st.gap.Contains(bar) {
			continue
		}

		prev := m1[idx-1]
		if !IsEngulfing(bar, prev, st.gap.Direction, st.atr, st.avgVolume, cfg) {
			continue
		}
		sig := buildSignal(bar, *st.gap, orb, m1[:idx+1], st.atr, equity, cfg)
		if sig != nil {
			st.confirmed = true
			return sig
		}
	}

	return nil
}

// DetectRange builds the opening range from the first coarse bar.
func DetectRange(open models.Bar, minRange float64) models.RangeLevel {
	rng := open.High - open.Low
	return models.RangeLevel{
		High:  open.High,
		Low:   open.Low,
		Range: rng,
		Valid: rng >= minRange,
	}
}

// DetectBreakout reports whether bar closes beyond the opening range with
// enough body and volume.
func DetectBreakout(bar models.Bar, orb models.RangeLevel, avgVolume float64, cfg models.StrategyConfig) (models.Direction, bool) {
	if indicators.BodyRatio(bar) < cfg.BodyRatioBreakout {
		return "", false
	}
	if bar.Volume < avgVolume*cfg.VolRupturaRatio {
		return "", false
	}
	switch {
	case bar.Close > orb.High:
		return models.DirectionUp, true
	case bar.Close < orb.Low:
		return models.DirectionDown, true
	}
	return "", false
}

// ComputeGap looks for a three-bar imbalance between the bar two back and the
// breakout bar. A zero ATR skips the minimum size check.
func ComputeGap(prev2, curr models.Bar, dir models.Direction, atr float64, cfg models.StrategyConfig) (models.Gap, bool) {
	var top, bottom float64
	switch dir {
	case models.DirectionUp:
		if curr.Low <= prev2.High {
			return models.Gap{}, false
		}
		bottom, top = prev2.High, curr.Low
	case models.DirectionDown:
		if curr.High >= prev2.Low {
			return models.Gap{}, false
		}
		top, bottom = prev2.Low, curr.High
	default:
		return models.Gap{}, false
	}

	size := top - bottom
	if atr != 0 && size < cfg.MinFVGSizeATR*atr {
		return models.Gap{}, false
	}
	return models.Gap{
		Top:       top,
		Bottom:    bottom,
		Midpoint:  (top + bottom) / 2,
		Size:      size,
		Direction: dir,
	}, true
}

// Invalidated reports whether the bar breaks the opposite side of the opening
// range while waiting for the retest. A close through the far side of the gap
// is deliberately not an invalidation.
func Invalidated(bar models.Bar, gap models.Gap, orb models.RangeLevel) bool {
	if gap.Direction == models.DirectionDown {
		return bar.High > orb.High
	}
	return bar.Low < orb.Low
}

// IsEngulfing checks the confirmation bar against its predecessor.
func IsEngulfing(curr, prev models.Bar, dir models.Direction, atr, avgVolume float64, cfg models.StrategyConfig) bool {
	if atr > 0 && curr.Body() < cfg.PCuerpoMin*atr {
		return false
	}
	if curr.Volume < cfg.PVolMin*avgVolume {
		return false
	}
	if dir == models.DirectionDown {
		return curr.IsBearish() && curr.Open >= prev.Close && curr.Close <= prev.Open
	}
	return curr.IsBullish() && curr.Open <= prev.Close && curr.Close >= prev.Open
}

func buildSignal(confirm models.Bar, gap models.Gap, orb models.RangeLevel, history []models.Bar, atr, equity float64, cfg models.StrategyConfig) *models.TradeSignal {
	buffer := cfg.BufferSLFactor * atr
	side := gap.Direction.Side()

	var entry, stop, target float64
	if side == models.SideShort {
		entry = gap.Top
		stop = math.Max(gap.Top, indicators.SwingHigh(history, cfg.SwingLookback)) + buffer
		target = entry - cfg.RRTarget*math.Abs(entry-stop)
	} else {
		entry = gap.Bottom
		stop = math.Min(gap.Bottom, indicators.SwingLow(history, cfg.SwingLookback)) - buffer
		target = entry + cfg.RRTarget*math.Abs(entry-stop)
	}

	risk := math.Abs(entry - stop)
	if risk == 0 {
		return nil
	}
	size := PositionSize(equity, cfg.RiskPerTrade, risk, 1.0)

	confidence := models.ConfidenceStandard
	if indicators.WickRatio(confirm) >= premiumWickRatio {
		confidence = models.ConfidencePremium
	}

	return &models.TradeSignal{
		ID:           signalID(confirm, side, entry, stop),
		Timestamp:    confirm.Timestamp,
		Side:         side,
		RangeHigh:    orb.High,
		RangeLow:     orb.Low,
		GapTop:       gap.Top,
		GapBottom:    gap.Bottom,
		Entry:        entry,
		Stop:         stop,
		Target:       target,
		Risk:         risk,
		PositionSize: size,
		Confidence:   confidence,
		ATR:          atr,
	}
}

// PositionSize is (equity * riskFraction) / (stopDistance * pipValue), or 0
// when the stop distance or pip value is not positive.
func PositionSize(equity, riskFraction, stopDistance, pipValue float64) float64 {
	if stopDistance <= 0 || pipValue <= 0 {
		return 0
	}
	return equity * riskFraction / (stopDistance * pipValue)
}

// signalID is stable for identical inputs: the suffix is a name-based UUID of
// the confirmation bar and levels.
func signalID(confirm models.Bar, side models.Side, entry, stop float64) string {
	name := fmt.Sprintf("%s|%s|%.8f|%.8f", confirm.Timestamp.Format(models.BarTimeLayout), side, entry, stop)
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	suffix := strings.ToUpper(strings.ReplaceAll(sum.String(), "-", "")[:4])
	return fmt.Sprintf("%s_ORB_%s_%s", confirm.Timestamp.Format("20060102T150405"), side, suffix)
}
