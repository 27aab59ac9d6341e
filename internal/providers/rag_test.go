package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordIndex_SyncAndQuery(t *testing.T) {
	l := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, l.Write(ctx, "kb/go.md", "Goroutines are cheap.\n\nChannels connect goroutines together.", WriteOverwrite))
	require.NoError(t, l.Write(ctx, "kb/tea.md", "Green tea is brewed cool.", WriteOverwrite))

	idx := NewKeywordIndex(l)
	n, err := idx.Sync(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := idx.Query(ctx, "channels and goroutines", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Channels connect goroutines together.", hits[0].Text)
	assert.Equal(t, "kb/go.md", hits[0].Path)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	none, err := idx.Query(ctx, "xy", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
