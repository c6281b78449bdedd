package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllSucceed(t *testing.T) {
	var order []int
	err := Run(context.Background(),
		func(context.Context) error { order = append(order, 1); return nil },
		Fire(func() { order = append(order, 2) }),
		func(context.Context) error { order = append(order, 3); return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRun_ShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	calls := map[string]int{}

	err := Run(context.Background(),
		func(context.Context) error { calls["ok1"]++; return nil },
		func(context.Context) error { calls["fail"]++; return boom },
		func(context.Context) error { calls["ok2"]++; return nil },
	)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls["ok1"])
	assert.Equal(t, 1, calls["fail"])
	assert.Zero(t, calls["ok2"], "step after a failure must never run")
}

func TestRun_EmptyList(t *testing.T) {
	assert.NoError(t, Run(context.Background()))
}

func TestRun_SkipsNilSteps(t *testing.T) {
	ran := false
	err := Run(context.Background(), nil, Fire(func() { ran = true }))
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := false

	err := Run(ctx,
		Fire(cancel),
		Fire(func() { ran = true }),
	)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestSequence_Nests(t *testing.T) {
	var order []string
	inner := Sequence(
		Fire(func() { order = append(order, "a") }),
		Fire(func() { order = append(order, "b") }),
	)
	err := Run(context.Background(), inner, Fire(func() { order = append(order, "c") }))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSequence_PropagatesInnerError(t *testing.T) {
	boom := errors.New("inner")
	outerRan := false
	err := Run(context.Background(),
		Sequence(func(context.Context) error { return boom }),
		Fire(func() { outerRan = true }),
	)
	assert.ErrorIs(t, err, boom)
	assert.False(t, outerRan)
}
