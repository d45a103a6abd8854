package swap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

func testRepo(t *testing.T) (*FileRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swaps.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)
	return repo, path
}

func sampleSwap(id, wallet string) *types.Swap {
	return &types.Swap{
		ID:         id,
		UserWallet: wallet,
		Provider:   "test",
		QuoteID:    id + "-q",
		DestAmount: "1000",
		Status:     types.StatusAwaitingSignature,
	}
}

func TestFileRepositoryCreateAndFind(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleSwap("s1", "wallet-a"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	found, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingSignature, found.Status)

	// Returned records are copies; mutating one must not leak back.
	found.Status = types.StatusFailed
	again, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingSignature, again.Status)
}

func TestFileRepositoryCreateDuplicate(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, sampleSwap("s1", "wallet-a"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, sampleSwap("s1", "wallet-a"))
	assert.Error(t, err)
}

func TestFileRepositoryUpdateStatus(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, sampleSwap("s1", "wallet-a"))
	require.NoError(t, err)

	updated, err := repo.UpdateStatus(ctx, "s1", types.StatusSubmitted, UpdateExtra{SourceTx: "sig-1"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, updated.Status)
	assert.Equal(t, "sig-1", updated.SourceTx)

	// A later update without extras keeps the earlier transaction id.
	updated, err = repo.UpdateStatus(ctx, "s1", types.StatusBridging, UpdateExtra{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusBridging, updated.Status)
	assert.Equal(t, "sig-1", updated.SourceTx)

	_, err = repo.UpdateStatus(ctx, "missing", types.StatusFailed, UpdateExtra{})
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeNotFound))
}

func TestFileRepositoryFindByUser(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := repo.Create(ctx, sampleSwap(id, "wallet-a"))
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, sampleSwap("other", "wallet-b"))
	require.NoError(t, err)

	swaps, err := repo.FindByUser(ctx, "wallet-a", 0)
	require.NoError(t, err)
	assert.Len(t, swaps, 3)
	for i := 1; i < len(swaps); i++ {
		assert.False(t, swaps[i-1].CreatedAt.Before(swaps[i].CreatedAt), "results must be newest first")
	}

	limited, err := repo.FindByUser(ctx, "wallet-a", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := repo.FindByUser(ctx, "wallet-c", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileRepositoryReload(t *testing.T) {
	repo, path := testRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, sampleSwap("s1", "wallet-a"))
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, "s1", types.StatusCompleted, UpdateExtra{DestTx: "dest-1"})
	require.NoError(t, err)

	reloaded, err := NewFileRepository(path)
	require.NoError(t, err)

	found, err := reloaded.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, found.Status)
	assert.Equal(t, "dest-1", found.DestTx)
}
