package domain

import "errors"

var (
	// ErrInvalidActionTable is returned when the action stream handed to the
	// simulator is missing required fields. Nothing has been simulated yet.
	ErrInvalidActionTable = errors.New("invalid action table")

	// ErrInsufficientLots is returned when a sale exceeds the unconsumed buy
	// lots of a symbol. The cost basis is no longer trustworthy and the run
	// must be aborted.
	ErrInsufficientLots = errors.New("insufficient lots")

	// ErrUnknownHolding is returned when a sell or hold references a symbol
	// the portfolio does not own.
	ErrUnknownHolding = errors.New("unknown holding")

	// ErrInvalidConfig is returned for out of range parameters.
	ErrInvalidConfig = errors.New("invalid configuration")
)
