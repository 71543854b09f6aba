package models

import "time"

// Direction is the trade direction a breakout or gap supports.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Side maps the direction onto the order side it supports.
func (d Direction) Side() Side {
	if d == DirectionDown {
		return SideShort
	}
	return SideLong
}

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type Confidence string

const (
	ConfidenceStandard Confidence = "standard"
	ConfidencePremium  Confidence = "premium"
)

// RangeLevel is the opening range taken from the first coarse bar.
type RangeLevel struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Range float64 `json:"range"`
	Valid bool    `json:"valid"`
}

// Gap is a three-bar price imbalance zone.
type Gap struct {
	Top       float64   `json:"top"`
	Bottom    float64   `json:"bottom"`
	Midpoint  float64   `json:"midpoint"`
	Size      float64   `json:"size"`
	Direction Direction `json:"direction"`
}

// Contains reports whether the bar's range overlaps the gap zone.
func (g Gap) Contains(b Bar) bool {
	return b.Low <= g.Top && b.High >= g.Bottom
}

// TradeSignal is a fully specified trade proposal produced by a strategy engine.
type TradeSignal struct {
	ID           string     `json:"signal_id"`
	Timestamp    time.Time  `json:"timestamp"`
	Side         Side       `json:"direction"`
	RangeHigh    float64    `json:"orh"`
	RangeLow     float64    `json:"orl"`
	GapTop       float64    `json:"fvg_top"`
	GapBottom    float64    `json:"fvg_bottom"`
	Entry        float64    `json:"entry"`
	Stop         float64    `json:"stop"`
	Target       float64    `json:"tp"`
	Risk         float64    `json:"risk_pips"`
	PositionSize float64    `json:"position_size"`
	Confidence   Confidence `json:"confidence"`
	ATR          float64    `json:"atr_m1"`
}
