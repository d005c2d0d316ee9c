package models

import "errors"

var (
	// ErrInvalidTradingDay is returned when a date fails calendar validation.
	ErrInvalidTradingDay = errors.New("invalid trading day")
	// ErrMissingPriceData is returned when the price source has no bar for the underlying or a leg.
	ErrMissingPriceData = errors.New("missing price data")
	// ErrInsufficientHistory is returned when a statistics window has no usable points.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrStorageUnavailable is returned when the record store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)
