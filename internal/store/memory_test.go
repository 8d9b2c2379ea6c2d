package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/game"
)

var _ game.BalanceStore = (*MemoryStore)(nil)
var _ game.BalanceStore = (*RedisStore)(nil)

func TestMemoryStoreSeedsNewWallets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemoryStore(500)

	bal, err := st.LoadBalance(ctx, "chan-1", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(500), bal)
}

func TestMemoryStoreBalancesArePerChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemoryStore(0)

	require.NoError(t, st.SaveBalanceDelta(ctx, "chan-1", "alice", 100))

	bal, err := st.LoadBalance(ctx, "chan-1", "alice")
	require.NoError(t, err)
	require.Equal(t, DefaultStartingBalance+100, bal)

	other, err := st.LoadBalance(ctx, "chan-2", "alice")
	require.NoError(t, err)
	require.Equal(t, DefaultStartingBalance, other, "channels must not share wallets")
}

func TestMemoryStoreDeltaOnUnseenUserSeedsFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemoryStore(1000)

	require.NoError(t, st.SaveBalanceDelta(ctx, "chan-1", "bob", -40))
	bal, err := st.LoadBalance(ctx, "chan-1", "bob")
	require.NoError(t, err)
	require.Equal(t, int64(960), bal)
}

func TestMemoryStoreConcurrentDeltas(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemoryStore(1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.SaveBalanceDelta(ctx, "chan-1", "alice", 2)
		}()
	}
	wg.Wait()

	bal, err := st.LoadBalance(ctx, "chan-1", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1100), bal)
}
