package synth

import "errors"

// Error taxonomy for the engine. Callers branch on the sentinel, never on the
// message text.
var (
	// Input validation.
	ErrInvalidAmount    = errors.New("synth engine: amount must be positive")
	ErrUnsupportedAsset = errors.New("synth engine: collateral asset not registered")
	ErrLengthMismatch   = errors.New("synth engine: token and feed lists must have equal length")
	ErrDuplicateAsset   = errors.New("synth engine: duplicate collateral asset")

	// Ledger bounds.
	ErrInsufficientCollateral = errors.New("synth engine: insufficient collateral balance")
	ErrInsufficientDebt       = errors.New("synth engine: burn exceeds outstanding debt")

	// Invariant violations.
	ErrHealthCheckFailed   = errors.New("synth engine: health factor below minimum")
	ErrTargetHealthy       = errors.New("synth engine: target position not eligible for liquidation")
	ErrHealthNotImproved   = errors.New("synth engine: liquidation did not improve target health")
	ErrLiquidatorUnhealthy = errors.New("synth engine: liquidator health factor below minimum")

	// External collaborators.
	ErrCollateralTransfer = errors.New("synth engine: collateral transfer failed")
	ErrDebtTokenCall      = errors.New("synth engine: debt token call failed")
	ErrOraclePrice        = errors.New("synth engine: oracle returned invalid price")

	// Wiring and execution guards.
	ErrNilState      = errors.New("synth engine: state not configured")
	ErrNilOracle     = errors.New("synth engine: price oracle not configured")
	ErrNilDebtToken  = errors.New("synth engine: debt token not configured")
	ErrTokenNotWired = errors.New("synth engine: collateral token contract not wired")
	ErrReentrantCall = errors.New("synth engine: operation already in flight")
)
