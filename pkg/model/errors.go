package model

import "errors"

var (
	// ErrUnsupportedTimeframe is returned for a timeframe outside 1s/1m/5m
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

	// ErrInvalidSelection is returned when a pair selection cannot be activated
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrMalformedTick is returned when a live payload has no usable time
	ErrMalformedTick = errors.New("malformed tick")

	// ErrUnorderedSnapshot is returned when snapshot bars are not strictly increasing in time
	ErrUnorderedSnapshot = errors.New("snapshot bars not strictly increasing")
)
