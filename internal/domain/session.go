package domain

import "time"

// TradingSession holds the limits of one simulator run. Everything except
// EndTime is fixed once the session starts.
type TradingSession struct {
	ID             string             `json:"id"`
	InitialCash    float64            `json:"initial_cash"`
	MaxLeverage    float64            `json:"max_leverage"`
	PositionLimits map[string]float64 `json:"position_limits"`
	DailyLossLimit float64            `json:"daily_loss_limit"`
	StartTime      time.Time          `json:"start_time"`
	EndTime        *time.Time         `json:"end_time,omitempty"`
}

// MaxExposure is the gross notional the session may carry.
func (s TradingSession) MaxExposure() float64 {
	lev := s.MaxLeverage
	if lev <= 0 {
		lev = 1
	}
	return s.InitialCash * lev
}

// PositionLimit returns the absolute position limit for symbol and whether
// one is configured.
func (s TradingSession) PositionLimit(symbol string) (float64, bool) {
	limit, ok := s.PositionLimits[symbol]
	return limit, ok && limit > 0
}
