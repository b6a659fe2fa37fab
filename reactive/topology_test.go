package reactive_test

import (
	"fmt"
	"testing"

	"github.com/cellgraph/cellgraph/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyDropAbaUpdates(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	//     A
	//   / |
	//  B  |
	//   \ |
	//     C
	//     |
	//     D
	a := reactive.State(rt, 2)
	b := reactive.Computed(rt, func() (int, error) {
		av, err := a.Get()
		return av - 1, err
	})
	c := reactive.Computed(rt, func() (int, error) {
		av, err := a.Get()
		if err != nil {
			return 0, err
		}
		bv, err := b.Get()
		return av + bv, err
	})
	callCount := 0
	d := reactive.Computed(rt, func() (string, error) {
		callCount++
		cv, err := c.Get()
		return fmt.Sprintf("d: %d", cv), err
	})

	assert.Equal(t, "d: 3", getv(t, d.Get))
	assert.Equal(t, 1, callCount)

	require.NoError(t, a.Set(4))
	assert.Equal(t, "d: 7", getv(t, d.Get))
	assert.Equal(t, 2, callCount)
}

func TestTopologyDiamondRecomputesOnce(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	// One write to "root" must cause exactly one recomputation of
	// "bottom", not two.
	//    root
	//   /    \
	// left  right
	//   \    /
	//   bottom
	root := reactive.State(rt, 1)
	left := reactive.Computed(rt, func() (int, error) {
		v, err := root.Get()
		return v + 1, err
	})
	right := reactive.Computed(rt, func() (int, error) {
		v, err := root.Get()
		return v * 10, err
	})
	callCount := 0
	bottom := reactive.Computed(rt, func() (int, error) {
		callCount++
		lv, err := left.Get()
		if err != nil {
			return 0, err
		}
		rv, err := right.Get()
		return lv + rv, err
	})

	assert.Equal(t, 12, getv(t, bottom.Get))
	assert.Equal(t, 1, callCount)

	require.NoError(t, root.Set(5))
	assert.Equal(t, 56, getv(t, bottom.Get))
	assert.Equal(t, 2, callCount)

	// Two batched writes still cost a single recomputation.
	rt.Batch(func() {
		require.NoError(t, root.Set(6))
		require.NoError(t, root.Set(7))
	})
	assert.Equal(t, 78, getv(t, bottom.Get))
	assert.Equal(t, 3, callCount)
}

func TestTopologyDiamondTail(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	//     A
	//   /   \
	//  B     C
	//   \   /
	//     D
	//     |
	//     E
	a := reactive.State(rt, "a")
	b := reactive.Computed(rt, func() (string, error) { return a.Get() })
	c := reactive.Computed(rt, func() (string, error) { return a.Get() })
	d := reactive.Computed(rt, func() (string, error) {
		bv, err := b.Get()
		if err != nil {
			return "", err
		}
		cv, err := c.Get()
		return bv + " " + cv, err
	})

	eCallCount := 0
	e := reactive.Computed(rt, func() (string, error) {
		eCallCount++
		return d.Get()
	})

	assert.Equal(t, "a a", getv(t, e.Get))
	assert.Equal(t, 1, eCallCount)

	require.NoError(t, a.Set("aa"))
	assert.Equal(t, "aa aa", getv(t, e.Get))
	assert.Equal(t, 2, eCallCount)
}

// Staleness propagates transitively without comparing intermediate
// values: when B recomputes to the same result, C still recomputes.
// This is the documented simplification of the scheduler, not a bug.
func TestTopologyStalePropagationIsTransitive(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	// A -> B -> C, with B pinned to a constant.
	a := reactive.State(rt, "a")
	b := reactive.Computed(rt, func() (string, error) {
		if _, err := a.Get(); err != nil {
			return "", err
		}
		return "foo", nil
	})
	callCount := 0
	c := reactive.Computed(rt, func() (string, error) {
		callCount++
		return b.Get()
	})

	assert.Equal(t, "foo", getv(t, c.Get))
	assert.Equal(t, 1, callCount)

	require.NoError(t, a.Set("aa"))
	assert.Equal(t, "foo", getv(t, c.Get))
	assert.Equal(t, 2, callCount)
}

func TestTopologyConditionalDependencyPruning(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	// pick = cond ? a : b. After cond flips to false, writes to "a"
	// must not recompute pick at all.
	cond := reactive.State(rt, true)
	a := reactive.State(rt, "a")
	b := reactive.State(rt, "b")
	callCount := 0
	pick := reactive.Computed(rt, func() (string, error) {
		callCount++
		cv, err := cond.Get()
		if err != nil {
			return "", err
		}
		if cv {
			return a.Get()
		}
		return b.Get()
	})

	assert.Equal(t, "a", getv(t, pick.Get))
	assert.Equal(t, 1, callCount)

	require.NoError(t, cond.Set(false))
	assert.Equal(t, "b", getv(t, pick.Get))
	assert.Equal(t, 2, callCount)

	require.NoError(t, a.Set("aaa"))
	assert.Equal(t, "b", getv(t, pick.Get))
	assert.Equal(t, 2, callCount)
	assert.Empty(t, reactive.Sinks(a))
}

func TestTopologyLazyComputedNeverRunsUnread(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	a := reactive.State(rt, "a")
	callCount := 0
	reactive.Computed(rt, func() (string, error) {
		callCount++
		return a.Get()
	})

	require.NoError(t, a.Set("aa"))
	assert.Equal(t, 0, callCount)
}

func TestTopologySourcesAndSinks(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	a := reactive.State(rt, 1, reactive.WithName[int]("a"))
	b := reactive.State(rt, 2, reactive.WithName[int]("b"))
	sum := reactive.Computed(rt, func() (int, error) {
		av, err := a.Get()
		if err != nil {
			return 0, err
		}
		bv, err := b.Get()
		return av + bv, err
	}, reactive.WithName[int]("sum"))

	assert.Empty(t, reactive.Sources(sum))
	assert.Equal(t, 3, getv(t, sum.Get))

	srcs := reactive.Sources(sum)
	require.Len(t, srcs, 2)
	assert.Equal(t, "a", srcs[0].Name())
	assert.Equal(t, "b", srcs[1].Name())

	sinks := reactive.Sinks(a)
	require.Len(t, sinks, 1)
	assert.Equal(t, "sum", sinks[0].Name())

	sum.Dispose()
	assert.Empty(t, reactive.Sinks(a))
	assert.Empty(t, reactive.Sinks(b))
}

func TestTopologySinksCreationOrder(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithErrorHandler(failOnError(t)))

	// Enough subscribers that lexical ordering of autogenerated names
	// ("computed-10" < "computed-2") would diverge from creation order.
	src := reactive.State(rt, 1)
	readers := make([]*reactive.ComputedSignal[int], 12)
	for i := range readers {
		readers[i] = reactive.Computed(rt, func() (int, error) {
			return src.Get()
		})
		getv(t, readers[i].Get) // establish src -> readers[i]
	}

	sinks := reactive.Sinks(src)
	require.Len(t, sinks, len(readers))
	for i, d := range sinks {
		assert.Equal(t, readers[i].Name(), d.Name())
	}
}
