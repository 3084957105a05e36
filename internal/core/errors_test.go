package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrf_CarriesCode(t *testing.T) {
	err := Errf(CodeNotFound, "no entry at %s", "notes/todo")
	assert.Equal(t, "NOT_FOUND: no entry at notes/todo", err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}

func TestErrf_WrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Errf(CodeQuery, "exec failed: %w", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsQuery(err))
}

func TestHasCode_SurvivesWrapping(t *testing.T) {
	inner := Errf(CodeAuthorization, "not a member")
	outer := fmt.Errorf("opening vault: %w", inner)
	assert.True(t, IsAuthorization(outer))
	assert.False(t, IsAuthorization(errors.New("not a member")))
}

func TestCodes_CoverEveryPredicate(t *testing.T) {
	predicates := map[Code]func(error) bool{
		CodeAuthorization:    IsAuthorization,
		CodeNotFound:         IsNotFound,
		CodeConflict:         IsConflict,
		CodeCrypto:           IsCrypto,
		CodeQuotaExceeded:    IsQuotaExceeded,
		CodeInsufficientKeys: IsInsufficientKeys,
		CodeQuery:            IsQuery,
		CodeConcurrency:      IsConcurrency,
	}
	require.Len(t, Codes(), len(predicates))
	for _, code := range Codes() {
		pred, ok := predicates[code]
		require.True(t, ok, "missing predicate for %s", code)
		assert.True(t, pred(Errf(code, "test")))
	}
}
