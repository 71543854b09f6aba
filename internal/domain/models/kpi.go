package models

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Ratio is a float that may legitimately be +Inf (profit factor with no
// losses). It serializes +Inf as the string "inf".
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(r), 1) {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if strings.Trim(string(data), `"`) == "inf" {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// KPIResult aggregates performance over a list of trades.
type KPIResult struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	Expectancy   float64 `json:"expectancy"`
	ProfitFactor Ratio   `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	AvgRR        float64 `json:"avg_rr"`
	TotalR       float64 `json:"total_r"`
	FinalEquity  float64 `json:"final_equity"`
	CAGR         float64 `json:"cagr"`
}

// Rounded returns a copy suitable for reporting: ratios to 4 places, equity to 2.
func (k KPIResult) Rounded() KPIResult {
	out := k
	out.WinRate = Round(k.WinRate, 4)
	out.Expectancy = Round(k.Expectancy, 4)
	if !math.IsInf(float64(k.ProfitFactor), 0) {
		out.ProfitFactor = Ratio(Round(float64(k.ProfitFactor), 4))
	}
	out.MaxDrawdown = Round(k.MaxDrawdown, 4)
	out.SharpeRatio = Round(k.SharpeRatio, 4)
	out.AvgRR = Round(k.AvgRR, 4)
	out.TotalR = Round(k.TotalR, 4)
	out.FinalEquity = Round(k.FinalEquity, 2)
	out.CAGR = Round(k.CAGR, 4)
	return out
}

// BootstrapResult holds 95% confidence intervals from trade resampling.
type BootstrapResult struct {
	NetProfitCI        [2]float64 `json:"net_profit_ci_95"`
	MaxDrawdownCI      [2]float64 `json:"max_drawdown_ci_95"`
	Iterations         int        `json:"iterations"`
	SampleSize         int        `json:"sample_size"`
	NetProfitSamples   []float64  `json:"net_profit_samples,omitempty"`
	MaxDrawdownSamples []float64  `json:"max_drawdown_samples,omitempty"`
}

// Round rounds half away from zero to places decimals. NaN and Inf pass through.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
