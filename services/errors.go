package services

import "errors"

// Provider and dispatch error taxonomy. Callers classify with errors.Is;
// all of these are non-fatal inside a tick (log and skip the symbol).
var (
	// ErrRateLimited means the provider call budget is exhausted for the
	// current window, or the provider itself returned HTTP 429.
	ErrRateLimited = errors.New("quote provider rate limited")

	// ErrSymbolNotFound means the provider does not know the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrProviderTimeout means the upstream fetch did not complete in time.
	ErrProviderTimeout = errors.New("quote provider timeout")

	// ErrDuplicateSuppressed is an idempotency no-op, not a failure: the
	// notification for this dedupe key already exists within its window.
	ErrDuplicateSuppressed = errors.New("duplicate notification suppressed")
)
