package entity

import (
	"errors"
	"fmt"
)

// Error categories reported by grabbers and exchange rates. Callers match
// them with errors.Is; the typed errors below carry the details.
var (
	// ErrFetchFailed is returned when the source could not be downloaded
	ErrFetchFailed = errors.New("fetch failed")

	// ErrMalformedPayload is returned when a response cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrSourceLayoutChanged is returned when an expected query or key is
	// absent or matches an unexpected number of nodes
	ErrSourceLayoutChanged = errors.New("source layout changed")

	// ErrInvalidFieldValue is returned when an extracted value fails validation
	ErrInvalidFieldValue = errors.New("invalid field value")

	// ErrUnexpectedResultCount is returned when a narrowed grabber does not
	// yield exactly one exchange rate
	ErrUnexpectedResultCount = errors.New("unexpected result count")

	// ErrObserverNotComparable is returned when attaching an observer that
	// could never be found again by Detach
	ErrObserverNotComparable = errors.New("observer is not comparable")
)

// FetchError describes a failed download
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: %s returned status %d: %v", ErrFetchFailed, e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", ErrFetchFailed, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s returned status %d", ErrFetchFailed, e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrFetchFailed
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// PayloadError describes a response body that could not be decoded
type PayloadError struct {
	Source string
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMalformedPayload, e.Source, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedPayload
func (e *PayloadError) Is(target error) bool { return target == ErrMalformedPayload }

// LayoutError names the query or key that no longer matches the source.
// Field is empty for the document-level item query. Found counts the
// matching nodes of a field query.
type LayoutError struct {
	Source string
	Field  string
	Query  string
	Found  int
}

func (e *LayoutError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("%s: %s: %s was not found", ErrSourceLayoutChanged, e.Source, e.Query)
	case e.Found == 0:
		return fmt.Sprintf("%s: %s: %s (responsible for %s) was not found", ErrSourceLayoutChanged, e.Source, e.Query, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s (responsible for %s) matched %d nodes, expected 1",
		ErrSourceLayoutChanged, e.Source, e.Query, e.Field, e.Found)
}

// Is reports whether target is ErrSourceLayoutChanged
func (e *LayoutError) Is(target error) bool { return target == ErrSourceLayoutChanged }

// FieldError describes a value that was found but failed validation
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %q: %s", ErrInvalidFieldValue, e.Field, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalidFieldValue
func (e *FieldError) Is(target error) bool { return target == ErrInvalidFieldValue }

// ResultCountError is returned by Refresh when the narrowed grabber yields
// zero or several rates
type ResultCountError struct {
	Source string
	Found  int
}

func (e *ResultCountError) Error() string {
	return fmt.Sprintf("%s: %s: expected 1 exchange rate, but %d was found", ErrUnexpectedResultCount, e.Source, e.Found)
}

// Is reports whether target is ErrUnexpectedResultCount
func (e *ResultCountError) Is(target error) bool { return target == ErrUnexpectedResultCount }

// ObserverError wraps a failure or panic of one observer. Observer faults
// never roll back the state change that triggered them.
type ObserverError struct {
	Observer string
	Event    string
	Err      error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer %s failed on %s: %v", e.Observer, e.Event, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }
