package floorbot

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyTracked indicates the (guild, policy id) pair is already
	// in the tracked list. Surfaced by the pre-check in [Bot.Track], and
	// by the store's unique constraint if two commands race past it.
	ErrAlreadyTracked = errors.New("policy id is already tracked")

	// ErrNotTracked indicates an untrack request for a pair that was
	// never tracked (or already removed).
	ErrNotTracked = errors.New("policy id is not tracked")

	// ErrUnknownPolicy indicates a policy id that the marketplace search
	// couldn't resolve to any collection.
	ErrUnknownPolicy = errors.New("no collection found for policy id")

	// ErrNothingTracked is returned by [Bot.TrackedReport] when the guild
	// has an empty tracked list. No network calls are made in that case.
	ErrNothingTracked = errors.New("no tracked policy ids")
)

// UpstreamError is a non-2xx, non-404 response from one of the upstream
// APIs. A 404 is never an UpstreamError - both upstreams use it to mean
// "no data", which callers see as an absent value instead.
type UpstreamError struct {
	Status int
	URL    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.URL)
}

// TransportError means the request never yielded a usable response:
// connection failures, timeouts, or a body that wasn't valid JSON.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
