package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoroutine_Alternates(t *testing.T) {
	var trace []string
	var co *coroutine
	co = startCoroutine(func() {
		trace = append(trace, "a")
		co.Yield()
		trace = append(trace, "b")
		co.Yield()
		trace = append(trace, "c")
	})

	assert.Empty(t, trace, "nothing runs before the first Resume")
	assert.True(t, co.Resume())
	assert.Equal(t, []string{"a"}, trace)
	assert.True(t, co.Resume())
	assert.Equal(t, []string{"a", "b"}, trace)
	assert.False(t, co.Resume(), "returning ends the coroutine")
	assert.Equal(t, []string{"a", "b", "c"}, trace)
	assert.False(t, co.Resume(), "resuming a finished coroutine is a no-op")
}

func TestCoroutine_UnwindSignal(t *testing.T) {
	ctxLike := &struct{ recovered any }{}
	var co *coroutine
	co = startCoroutine(func() {
		defer func() { ctxLike.recovered = recover() }()
		co.Yield()
		panic(abortSignal{})
	})
	assert.True(t, co.Resume())
	assert.False(t, co.Resume())
	assert.Equal(t, abortSignal{}, ctxLike.recovered)
}
