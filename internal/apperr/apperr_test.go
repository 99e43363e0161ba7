package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: KindInternal},
		{name: "typed", err: New(KindForbidden, "not yours"), want: KindForbidden},
		{name: "wrapped", err: fmt.Errorf("approve: %w", New(KindInvalidState, "done")), want: KindInvalidState},
		{name: "balance", err: &InsufficientBalanceError{Current: 50, Requested: 100}, want: KindInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Newf(KindNotFound, "payment %s not found", "p1"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, &InsufficientBalanceError{Current: 1, Requested: 2}, ErrInsufficientBalance)
}

func TestMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
	assert.Equal(t, "service temporarily unavailable", Message(Unavailable(errors.New("pq: connection refused"))))
	assert.Equal(t, "insufficient balance: have 50 points, need 100", Message(&InsufficientBalanceError{Current: 50, Requested: 100}))
}
