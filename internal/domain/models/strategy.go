package models

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// StrategyConfig holds every threshold of the opening-range strategy. A value is
// built once per run and shared read-only.
type StrategyConfig struct {
	// Opening range and breakout
	MinRangePips      float64 `yaml:"min_range_pips" json:"min_range_pips" default:"0.1" validate:"gte=0"`
	VolRupturaRatio   float64 `yaml:"vol_ruptura_ratio" json:"vol_ruptura_ratio" default:"0.5" validate:"gte=0"`
	BodyRatioBreakout float64 `yaml:"body_ratio_breakout" json:"body_ratio_breakout" default:"0.10" validate:"gte=0,lte=1"`
	MinFVGSizeATR     float64 `yaml:"min_fvg_size_atr" json:"min_fvg_size_atr" default:"0.10" validate:"gte=0"`

	// Failed-candle-reversal thresholds, reserved for a second setup variant.
	K1ATRFCR      float64 `yaml:"k1_atr_fcr" json:"k1_atr_fcr" default:"1.5" validate:"gte=0"`
	K2BodyRatio   float64 `yaml:"k2_body_ratio" json:"k2_body_ratio" default:"0.6" validate:"gte=0,lte=1"`
	K3VolRatioFCR float64 `yaml:"k3_vol_ratio_fcr" json:"k3_vol_ratio_fcr" default:"1.5" validate:"gte=0"`

	// Engulfing confirmation
	PCuerpoMin float64 `yaml:"p_cuerpo_min" json:"p_cuerpo_min" default:"0.10" validate:"gte=0"`
	PVolMin    float64 `yaml:"p_vol_min" json:"p_vol_min" default:"0.50" validate:"gte=0"`

	// Execution
	WaitRetestMaxM1 int     `yaml:"wait_retest_max_m1" json:"wait_retest_max_m1" default:"30" validate:"gte=1,lte=500"`
	RRTarget        float64 `yaml:"rr_target" json:"rr_target" default:"3.0" validate:"gt=0"`
	BufferSLFactor  float64 `yaml:"buffer_sl_factor" json:"buffer_sl_factor" default:"0.10" validate:"gte=0"`
	MaxSpread       float64 `yaml:"max_spread" json:"max_spread" default:"0.0005" validate:"gte=0"`
	SwingLookback   int     `yaml:"swing_lookback" json:"swing_lookback" default:"5" validate:"gte=1"`

	// Risk
	RiskPerTrade          float64 `yaml:"risk_per_trade" json:"risk_per_trade" default:"0.005" validate:"gt=0,lte=1"`
	MaxTradesPerDay       int     `yaml:"max_trades_per_day" json:"max_trades_per_day" default:"2" validate:"gte=1"`
	MaxConcurrentTrades   int     `yaml:"max_concurrent_trades" json:"max_concurrent_trades" default:"1" validate:"gte=1"`
	MaxDailyLosses        int     `yaml:"max_daily_losses" json:"max_daily_losses" default:"2" validate:"gte=1"`
	MaxDailyDrawdownPct   float64 `yaml:"max_daily_drawdown_pct" json:"max_daily_drawdown_pct" default:"0.02" validate:"gt=0,lte=1"`
	MaxMonthlyDrawdownPct float64 `yaml:"max_monthly_drawdown_pct" json:"max_monthly_drawdown_pct" default:"0.10" validate:"gt=0,lte=1"`

	// Scaled take-profit, reserved for partial exits.
	TPScalingEnabled bool    `yaml:"tp_scaling_enabled" json:"tp_scaling_enabled"`
	TP1RR            float64 `yaml:"tp1_rr" json:"tp1_rr" default:"2.0"`
	TP1SizePct       float64 `yaml:"tp1_size_pct" json:"tp1_size_pct" default:"50.0"`
	TP2RR            float64 `yaml:"tp2_rr" json:"tp2_rr" default:"3.0"`
	TP2SizePct       float64 `yaml:"tp2_size_pct" json:"tp2_size_pct" default:"50.0"`
}

// DefaultStrategyConfig returns the configuration with every documented default.
func DefaultStrategyConfig() StrategyConfig {
	var cfg StrategyConfig
	if err := defaults.Set(&cfg); err != nil {
		// tags are static; a failure here is a programming error
		panic(fmt.Sprintf("strategy defaults: %v", err))
	}
	return cfg
}

var strategyValidator = validator.New()

// Validate checks field bounds.
func (c StrategyConfig) Validate() error {
	if err := strategyValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}
	return nil
}

// StrategyOverrides are the per-request knobs. Nil fields keep the base value.
type StrategyOverrides struct {
	MinRangePips    *float64 `json:"min_range_pips,omitempty" validate:"omitempty,gte=0"`
	VolRupturaRatio *float64 `json:"vol_ruptura_ratio,omitempty" validate:"omitempty,gte=0"`
	PCuerpoMin      *float64 `json:"p_cuerpo_min,omitempty" validate:"omitempty,gte=0"`
	PVolMin         *float64 `json:"p_vol_min,omitempty" validate:"omitempty,gte=0"`
	MinFVGSizeATR   *float64 `json:"min_fvg_size_atr,omitempty" validate:"omitempty,gte=0"`
	WaitRetestMaxM1 *int     `json:"wait_retest_max_m1,omitempty" validate:"omitempty,gte=1,lte=500"`
	RRTarget        *float64 `json:"rr_target,omitempty" validate:"omitempty,gt=0"`
	BufferSLFactor  *float64 `json:"buffer_sl_factor,omitempty" validate:"omitempty,gte=0"`
	RiskPerTrade    *float64 `json:"risk_per_trade,omitempty" validate:"omitempty,gt=0,lte=1"`
}

// Apply returns a copy of base with the non-nil overrides applied.
func (o *StrategyOverrides) Apply(base StrategyConfig) StrategyConfig {
	if o == nil {
		return base
	}
	out := base
	setFloat(&out.MinRangePips, o.MinRangePips)
	setFloat(&out.VolRupturaRatio, o.VolRupturaRatio)
	setFloat(&out.PCuerpoMin, o.PCuerpoMin)
	setFloat(&out.PVolMin, o.PVolMin)
	setFloat(&out.MinFVGSizeATR, o.MinFVGSizeATR)
	setFloat(&out.RRTarget, o.RRTarget)
	setFloat(&out.BufferSLFactor, o.BufferSLFactor)
	setFloat(&out.RiskPerTrade, o.RiskPerTrade)
	if o.WaitRetestMaxM1 != nil {
		out.WaitRetestMaxM1 = *o.WaitRetestMaxM1
	}
	return out
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
