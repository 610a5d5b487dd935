package idpath

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/testengine/pkg/host"
)

func TestHashMatchesCRC32(t *testing.T) {
	assert.Equal(t, host.ID(crc32.ChecksumIEEE([]byte("Hello"))), Hash("Hello", 0))
	assert.Equal(t, HashData([]byte("Hello"), 1234), Hash("Hello", 1234))
}

func TestHashTripleHashResetsToSeed(t *testing.T) {
	seed := Hash("Window", 0)
	assert.Equal(t, Hash("###id", seed), Hash("Visible###id", seed))
	assert.NotEqual(t, Hash("Visible", seed), Hash("Other", seed))
}

func TestHashPathSegmentsChainSeeds(t *testing.T) {
	a := HashPath("a", 0)
	assert.Equal(t, HashPath("b", a), HashPath("a/b", 0))

	w := HashPath("Window", 0)
	n := HashPath("Node", w)
	assert.Equal(t, HashPath("Button", n), HashPath("Window/Node/Button", 0))
}

func TestHashPathEscapedSeparatorIsLiteral(t *testing.T) {
	assert.NotEqual(t, HashPath("a/b", 0), HashPath(`a\/b`, 0))
	assert.Equal(t, Hash("a/b", 0), HashPath(`a\/b`, 0))
	assert.Equal(t, Hash(`a\b`, 0), HashPath(`a\\b`, 0))
}

func TestHashPathLeadingSlashIgnoresSeed(t *testing.T) {
	seed := HashPath("Somewhere/Else", 0)
	assert.Equal(t, HashPath("Window/Button", 0), HashPath("/Window/Button", seed))
	assert.Equal(t, HashPath("Window/Button", 0), HashPath("//Window/Button", seed))
}

func TestHashPathPlainLabelMatchesHash(t *testing.T) {
	seed := host.ID(0xDEADBEEF)
	assert.Equal(t, Hash("Button", seed), HashPath("Button", seed))
	assert.Equal(t, Hash("Label###id", seed), HashPath("Label###id", seed))
}

func TestHashPathTrailingSeparator(t *testing.T) {
	assert.Equal(t, HashPath("a", 0), HashPath("a/", 0))
}

func TestHashPathIntegerSegment(t *testing.T) {
	w := HashPath("Window", 0)
	want := HashPath("Item", HashInt(3, w))
	assert.Equal(t, want, HashPath("Window/$$3/Item", 0))
	assert.Equal(t, HashInt(-1, w), HashPath("$$-1", w))

	// Not a number: hashed as text.
	assert.Equal(t, Hash("$$x", w), HashPath("$$x", w))
}

func TestRefResolve(t *testing.T) {
	seed := HashPath("Window", 0)
	require.True(t, Ref{}.IsEmpty())
	assert.Equal(t, seed, Ref{}.Resolve(seed))
	assert.Equal(t, host.ID(42), RefID(42).Resolve(seed))
	assert.Equal(t, HashPath("OK", seed), RefPath("OK").Resolve(seed))
	assert.Equal(t, host.ID(7), Ref{ID: 7, Path: "ignored"}.Resolve(seed))
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "Window/OK", RefPath("Window/OK").String())
	assert.Equal(t, "0x2a", RefID(42).String())
}
