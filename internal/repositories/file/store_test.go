package file

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

func TestStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "carts/01HZ/lumberBossCart", `[{"sku":"A"}]`))
	require.NoError(t, store.Set(ctx, "carts/01HZ/lumberBossCart", `[{"sku":"B"}]`))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	value, err := reopened.Get(ctx, "carts/01HZ/lumberBossCart")
	require.NoError(t, err)
	assert.Equal(t, `[{"sku":"B"}]`, value)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")

	require.NoError(t, reopened.Delete(ctx, "carts/01HZ/lumberBossCart"))
	_, err = reopened.Get(ctx, "carts/01HZ/lumberBossCart")
	assert.True(t, repositories.IsNotFound(err))
	require.NoError(t, reopened.Ping(ctx))
}

func TestNewStoreRequiresDirectory(t *testing.T) {
	_, err := NewStore(" ")
	assert.Error(t, err)
}
