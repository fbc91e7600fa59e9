// Package bgerr defines the flat tagged error taxonomy shared by every
// pipeline stage. It replaces exception-hierarchy style control flow
// (BitcoingraphException / BlockchainException / GraphException in the
// original project) with typed values propagated by return, matching the
// eight error kinds documented for the ingestion and entity-resolution
// pipeline.
package bgerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by origin and retry policy.
type Kind int

const (
	// KindTransientTransport covers connection refused, timeout, and 5xx
	// responses from the node. Retried with fixed backoff before becoming fatal.
	KindTransientTransport Kind = iota

	// KindRPCProtocol covers a 4xx response carrying a JSON-RPC error body.
	// Never retried.
	KindRPCProtocol

	// KindChainInconsistency covers a height skip or a missing nextblockhash
	// mid-range.
	KindChainInconsistency

	// KindUnresolvedPrevOutput covers an input whose previous output the node
	// reports as unknown. Recovered locally, never fatal.
	KindUnresolvedPrevOutput

	// KindMalformedRecord covers a node response that violates the documented
	// RPC schema.
	KindMalformedRecord

	// KindDumpIO covers a failure writing to the dump file set.
	KindDumpIO

	// KindSortSubprocess covers a non-zero exit from the external sort
	// facility used by the dedup/sort post-step.
	KindSortSubprocess

	// KindResolverInconsistency covers a duplicate address in the sorted
	// address set, detected by the entity resolver when it loads
	// addresses.csv. The resolver does not check the file's sort order.
	KindResolverInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindTransientTransport:
		return "transient_transport"
	case KindRPCProtocol:
		return "rpc_protocol"
	case KindChainInconsistency:
		return "chain_inconsistency"
	case KindUnresolvedPrevOutput:
		return "unresolved_prev_output"
	case KindMalformedRecord:
		return "malformed_record"
	case KindDumpIO:
		return "dump_io"
	case KindSortSubprocess:
		return "sort_subprocess"
	case KindResolverInconsistency:
		return "resolver_inconsistency"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind must abort the pipeline.
// KindUnresolvedPrevOutput is the sole local-recovery kind.
func (k Kind) Fatal() bool {
	return k != KindUnresolvedPrevOutput
}

// ErrFatal is a sentinel callers can test against with errors.Is(err,
// bgerr.ErrFatal): any *BGError whose Kind.Fatal() is true matches it, via
// BGError.Is below. It never needs to be returned directly.
var ErrFatal = errors.New("bgerr: fatal pipeline error")

// BGError is the single error type every pipeline stage returns.
type BGError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *BGError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BGError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, bgerr.ErrFatal) report whether err is a fatal
// *BGError, without requiring a sentinel-equal Cause chain.
func (e *BGError) Is(target error) bool {
	return target == ErrFatal && e.Kind.Fatal()
}

// New constructs a BGError of the given kind.
func New(kind Kind, message string, cause error) *BGError {
	return &BGError{Kind: kind, Message: message, Cause: cause}
}

// Wrap adds one layer of context to err while preserving its kind and cause
// chain. If err is not a *BGError it is classified as KindMalformedRecord,
// since every pipeline boundary is expected to already produce typed errors.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	var be *BGError
	if errors.As(err, &be) {
		return New(be.Kind, context+": "+be.Message, be.Cause)
	}
	return New(KindMalformedRecord, context, err)
}

// KindOf extracts the Kind of err, returning (_, false) if err is not a
// *BGError.
func KindOf(err error) (Kind, bool) {
	var be *BGError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err, if a *BGError, demands pipeline abort. A
// non-BGError is treated as fatal (unclassified errors must not be
// swallowed).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	k, ok := KindOf(err)
	if !ok {
		return true
	}
	return k.Fatal()
}
