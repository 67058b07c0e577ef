package service

import "errors"

var (
	// ErrValidation marks a mutation rejected locally before any remote
	// call; no optimistic state change is applied.
	ErrValidation = errors.New("validation failed")

	// ErrItemBusy is returned when a mutation targets an item that already
	// has one in flight. The caller should keep the control disabled.
	ErrItemBusy = errors.New("a mutation for this item is already in progress")

	// ErrNotLoaded is returned when a mutation is attempted before the
	// session has fetched its authoritative state.
	ErrNotLoaded = errors.New("session state not loaded")
)
