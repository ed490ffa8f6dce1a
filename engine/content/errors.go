package content

import "errors"

// Sentinel errors forming the pipeline's failure taxonomy. Callers classify
// with errors.Is; HTTP handlers map them onto status codes.
var (
	// ErrInvalidInput covers missing required fields, unparseable
	// identifiers and blank queries. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned for reads, updates and deletes of unknown IDs.
	ErrNotFound = errors.New("not found")

	// ErrOracle wraps failed AI calls. Analysis failures degrade to a safe
	// default; embedding failures feed the job retry policy; generation
	// failures are hard failures.
	ErrOracle = errors.New("oracle failure")

	// ErrIndex wraps vector index failures. Retried for job writes, logged
	// and ignored for deletes, hard failure for search.
	ErrIndex = errors.New("vector index failure")

	// ErrStore wraps primary store failures. Always a hard failure at this
	// layer.
	ErrStore = errors.New("primary store failure")
)
