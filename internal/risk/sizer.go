package risk

import (
	"fmt"
	"math"
)

// Config holds risk parameters, loaded once at startup and treated as
// immutable for the run.
type Config struct {
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"` // Default: 0.02 (2% of equity)
	StopLossPct      float64 `yaml:"stop_loss_pct"`      // Default: 0.05
	TakeProfitPct    float64 `yaml:"take_profit_pct"`    // Default: 0.10
	MaxHoldBars      int     `yaml:"max_hold_bars"`      // Default: 0 (disabled)
	ConfidenceFloor  float64 `yaml:"confidence_floor"`   // Default: 0.30, hard gate
	VolReference     float64 `yaml:"vol_reference"`      // Default: 0.10
	MaxPositionPct   float64 `yaml:"max_position_pct"`   // Default: 0.25 of equity per symbol
	MaxGrossExposure float64 `yaml:"max_gross_exposure"` // Default: 1.0 (no leverage)
}

// DefaultConfig returns conservative defaults
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade:  0.02,
		StopLossPct:      0.05,
		TakeProfitPct:    0.10,
		MaxHoldBars:      0,
		ConfidenceFloor:  0.30,
		VolReference:     0.10,
		MaxPositionPct:   0.25,
		MaxGrossExposure: 1.0,
	}
}

// PositionSizeShares converts a risk budget into whole shares:
// floor(equity*maxRiskFraction / |entry-stop|). Returns 0 when the
// entry is invalid or the per-share risk is zero.
func PositionSizeShares(equity, entryPrice, stopLossPrice, maxRiskFraction float64) int {
	if equity <= 0 || entryPrice <= 0 || maxRiskFraction <= 0 {
		return 0
	}
	perShareRisk := math.Abs(entryPrice - stopLossPrice)
	if perShareRisk == 0 {
		return 0
	}
	shares := math.Floor(equity * maxRiskFraction / perShareRisk)
	if shares < 0 {
		return 0
	}
	return int(shares)
}

// Sizer converts blended decisions into order quantities subject to
// volatility scaling, confidence scaling, and exposure limits.
type Sizer struct {
	config Config
}

// NewSizer creates a sizer with the given risk configuration
func NewSizer(config Config) *Sizer {
	return &Sizer{config: config}
}

// Passes reports whether a decision clears the hard confidence gate.
// Signals below the floor are discarded entirely, not scaled down.
func (s *Sizer) Passes(confidence float64) bool {
	return confidence >= s.config.ConfidenceFloor
}

// VolatilityFactor returns a multiplier in [0.5, 1.0], linearly reduced
// as recent volatility approaches the reference.
func (s *Sizer) VolatilityFactor(recentVol float64) float64 {
	if recentVol <= 0 || s.config.VolReference <= 0 {
		return 1.0
	}
	ratio := math.Min(1.0, recentVol/s.config.VolReference)
	return 1.0 - 0.5*ratio
}

// ConfidenceFactor returns a multiplier in [0.5, 1.0], linearly scaled
// between the confidence floor and 1.0.
func (s *Sizer) ConfidenceFactor(confidence float64) float64 {
	floor := s.config.ConfidenceFloor
	if confidence <= floor {
		return 0.5
	}
	if confidence >= 1.0 {
		return 1.0
	}
	return 0.5 + 0.5*(confidence-floor)/(1.0-floor)
}

// Shares computes the final order quantity: the risk-budget size scaled
// by the volatility and confidence factors, floored to whole shares.
func (s *Sizer) Shares(equity, entryPrice, stopLossPrice, recentVol, confidence float64) int {
	if !s.Passes(confidence) {
		return 0
	}
	perShareRisk := math.Abs(entryPrice - stopLossPrice)
	if perShareRisk == 0 || equity <= 0 || entryPrice <= 0 {
		return 0
	}
	budget := equity * s.config.MaxRiskPerTrade
	raw := budget / perShareRisk
	scaled := raw * s.VolatilityFactor(recentVol) * s.ConfidenceFactor(confidence)
	return int(math.Floor(scaled))
}

// StopLossPrice derives the configured stop level from an entry price
func (s *Sizer) StopLossPrice(entryPrice float64) float64 {
	return entryPrice * (1.0 - s.config.StopLossPct)
}

// TakeProfitPrice derives the configured target level from an entry price
func (s *Sizer) TakeProfitPrice(entryPrice float64) float64 {
	return entryPrice * (1.0 + s.config.TakeProfitPct)
}

// MaxHoldBars returns the configured maximum holding period, 0 = disabled
func (s *Sizer) MaxHoldBars() int {
	return s.config.MaxHoldBars
}

// CheckLimits validates position and exposure limits before order
// creation. A violation means the order is never created, not
// submitted-then-rejected. notional is the proposed order value,
// heldValue the current market value in the symbol, grossExposure the
// total market value across all positions, equity the account equity.
func (s *Sizer) CheckLimits(notional, heldValue, grossExposure, equity float64) error {
	if equity <= 0 {
		return fmt.Errorf("non-positive equity %.2f", equity)
	}
	if s.config.MaxPositionPct > 0 {
		if (heldValue+notional)/equity > s.config.MaxPositionPct {
			return fmt.Errorf("position limit: %.2f%% of equity exceeds max %.2f%%",
				(heldValue+notional)/equity*100, s.config.MaxPositionPct*100)
		}
	}
	if s.config.MaxGrossExposure > 0 {
		if (grossExposure+notional)/equity > s.config.MaxGrossExposure {
			return fmt.Errorf("exposure limit: gross %.2fx exceeds max %.2fx",
				(grossExposure+notional)/equity, s.config.MaxGrossExposure)
		}
	}
	return nil
}
