package catalog

import "errors"

// ErrorKind buckets a store error for the writer's retry taxonomy.
type ErrorKind int

// Error kinds, from most to least retryable.
const (
	// KindUnknown is an unclassified failure; retried with the same budget
	// as transient errors.
	KindUnknown ErrorKind = iota
	// KindTransient is a connection-level failure expected to clear on retry.
	KindTransient
	// KindPermanent is a validation or business-logic rejection that no
	// retry can fix.
	KindPermanent
)

// kindError attaches an ErrorKind to a wrapped cause.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WithKind wraps err with an explicit classification. A nil err returns nil.
func WithKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Classify extracts the ErrorKind from an error chain, defaulting to
// KindUnknown when nothing in the chain carries a classification.
func Classify(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}
