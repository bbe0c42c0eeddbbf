package fault

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, RateLimited, KindOf(New(RateLimited, "quota exhausted")))
	assert.Equal(t, Internal, KindOf(errors.New("plain error")))
	assert.Equal(t, Internal, KindOf(nil))
}

func TestKindOfWrappedChain(t *testing.T) {
	inner := New(NotFound, "no such schedule")
	outer := fmt.Errorf("cancel failed: %w", inner)

	assert.Equal(t, NotFound, KindOf(outer))
	assert.True(t, IsKind(outer, NotFound))
	assert.False(t, IsKind(outer, RateLimited))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("http 429")
	f := Wrap(RateLimited, cause, "model quota exhausted")

	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "rate_limited")
	assert.Contains(t, f.Error(), "http 429")
}

func TestSuggestedWaitOf(t *testing.T) {
	f := Wrap(RateLimited, errors.New("429"), "quota")
	f.SuggestedWait = 13 * time.Second

	wait, ok := SuggestedWaitOf(f)
	assert.True(t, ok)
	assert.Equal(t, 13*time.Second, wait)

	_, ok = SuggestedWaitOf(New(RateLimited, "quota"))
	assert.False(t, ok)

	_, ok = SuggestedWaitOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "invalid_schedule", InvalidSchedule.String())
}
