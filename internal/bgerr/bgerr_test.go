package bgerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrFatal_MatchesFatalKindsOnly(t *testing.T) {
	assert.True(t, errors.Is(New(KindChainInconsistency, "height skip", nil), ErrFatal))
	assert.False(t, errors.Is(New(KindUnresolvedPrevOutput, "missing prev output", nil), ErrFatal))
	assert.False(t, errors.Is(errors.New("plain error"), ErrFatal))
}

func TestIsFatal_AgreesWithErrFatal(t *testing.T) {
	fatal := New(KindDumpIO, "write failed", nil)
	recoverable := New(KindUnresolvedPrevOutput, "unresolved", nil)

	assert.Equal(t, errors.Is(fatal, ErrFatal), IsFatal(fatal))
	assert.Equal(t, errors.Is(recoverable, ErrFatal), IsFatal(recoverable))
}
