package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindDecode
	KindStore
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindStore:
		return "store"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of the first taxonomy error in err's chain.
func KindOf(err error) Kind {
	var (
		transport   *TransportError
		decode      *DecodeError
		store       *StoreError
		consistency *ConsistencyWarning
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &decode):
		return KindDecode
	case errors.As(err, &store):
		return KindStore
	case errors.As(err, &consistency):
		return KindConsistency
	default:
		return KindUnknown
	}
}

// TransportError is a failed exchange call.
type TransportError struct {
	Op         string // e.g. "fetch candles"
	StatusCode int    // HTTP status, 0 if the request never completed
	Code       string // Exchange error code, empty if not applicable
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s: exchange error %s: %s", e.Op, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether repeating the call may succeed.
func (e *TransportError) IsRetryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// DecodeError is an unparseable payload or row.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StoreError is a failed storage call. The whole batch of the call was rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Consistency warning kinds.
const (
	OutOfOrder = "out_of_order"
	Duplicate  = "duplicate"
	Misaligned = "misaligned"
)

// ConsistencyWarning reports irregular data that was dropped or flagged.
type ConsistencyWarning struct {
	Series string
	Kind   string
	TS     int64 // Offending timestamp
	LastTS int64 // Reference timestamp it was compared against
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("%s: %s ts=%d last_ts=%d", w.Series, w.Kind, w.TS, w.LastTS)
}
