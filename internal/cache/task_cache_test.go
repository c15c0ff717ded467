package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/backend/internal/config"
	"task-manager/backend/internal/models"
)

func TestListKey(t *testing.T) {
	done := true
	category := 7

	assert.Equal(t, "tasks:list:3:g0.0:completed=any:category=any", ListKey(3, "0.0", models.TaskFilter{}))
	assert.Equal(t, "tasks:list:3:g1.4:completed=true:category=7",
		ListKey(3, "1.4", models.TaskFilter{IsCompleted: &done, CategoryID: &category}))
}

func TestListKey_UserPrefixDoesNotOverlap(t *testing.T) {
	// ユーザー1の削除パターンがユーザー12のキーに一致しないこと
	key12 := ListKey(12, "0.0", models.TaskFilter{})
	assert.False(t, strings.HasPrefix(key12, userPrefix(1)))
	assert.True(t, strings.HasPrefix(key12, userPrefix(12)))
}

func newTestCache(t *testing.T) *TaskCache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping Redis cache tests")
	}
	rdb, err := NewRedisClient(config.RedisConfig{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return NewTaskCache(rdb, time.Minute)
}

func TestTaskCache_Redis(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	gen1, err := c.Generation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0.0", gen1)

	list, err := c.GetList(ctx, 1, gen1, models.TaskFilter{})
	require.NoError(t, err)
	assert.Nil(t, list, "miss")

	gen12, err := c.Generation(ctx, 12)
	require.NoError(t, err)
	require.NoError(t, c.SetList(ctx, 1, gen1, models.TaskFilter{}, []*models.Task{{ID: 10, Title: "x", OwnerID: 1}}))
	require.NoError(t, c.SetList(ctx, 12, gen12, models.TaskFilter{}, []*models.Task{}))

	list, err = c.GetList(ctx, 1, gen1, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "x", list[0].Title)

	require.NoError(t, c.InvalidateUsers(ctx, 1))
	gen1, err = c.Generation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0.1", gen1)
	list, err = c.GetList(ctx, 1, gen1, models.TaskFilter{})
	require.NoError(t, err)
	assert.Nil(t, list)

	list, err = c.GetList(ctx, 12, gen12, models.TaskFilter{})
	require.NoError(t, err)
	assert.NotNil(t, list, "user 12 is untouched")

	require.NoError(t, c.InvalidateAll(ctx))
	gen12After, err := c.Generation(ctx, 12)
	require.NoError(t, err)
	assert.NotEqual(t, gen12, gen12After)
}

// 一覧の読み込み中に無効化された場合、読み込み後の書き込みは以後の読み取りに出てこない。
func TestTaskCache_SetAfterInvalidateIsNotServed(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// bobの一覧読み込み: 世代を取ってからDBを読む
	gen, err := c.Generation(ctx, 2)
	require.NoError(t, err)
	stale := []*models.Task{{ID: 5, Title: "Buy milk", OwnerID: 1, SharedWith: []int{2}}}

	// その間にaliceが共有を外す
	require.NoError(t, c.InvalidateUsers(ctx, 1, 2))

	// 読み込み済みの古い一覧が後から書き込まれる
	require.NoError(t, c.SetList(ctx, 2, gen, models.TaskFilter{}, stale))

	current, err := c.Generation(ctx, 2)
	require.NoError(t, err)
	list, err := c.GetList(ctx, 2, current, models.TaskFilter{})
	require.NoError(t, err)
	assert.Nil(t, list)
}
