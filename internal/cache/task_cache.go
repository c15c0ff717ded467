// Package cache はタスク一覧をRedisにキャッシュします。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"task-manager/backend/internal/models"
)

const (
	keyPrefix     = "tasks:list:"
	genKeyPrefix  = "tasks:gen:"
	globalGenKey  = "tasks:gen"
	emptyGenCount = "0"
)

// TaskCache はユーザーごと・絞り込み条件ごとのタスク一覧をキャッシュします。
// 一覧はユーザーから見えるタスク (所有 + 共有) なので、タスクが変わったら
// 所有者と共有相手すべてのキャッシュを消す必要があります。
//
// キーには世代番号が入ります。無効化は世代を進めるので、無効化より前に
// 読み込んだ一覧を後から書き込んでも、その古いキーは二度と読まれません。
type TaskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskCache は新しいTaskCacheを返します。
func NewTaskCache(rdb *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{rdb: rdb, ttl: ttl}
}

// Generation はユーザーの一覧キャッシュの現在の世代を返します。
// DBから一覧を読む前に取得し、同じ値をSetListに渡します。
func (c *TaskCache) Generation(ctx context.Context, userID int) (string, error) {
	vals, err := c.rdb.MGet(ctx, globalGenKey, genKey(userID)).Result()
	if err != nil {
		return "", err
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = emptyGenCount
		if s, ok := v.(string); ok {
			parts[i] = s
		}
	}
	return parts[0] + "." + parts[1], nil
}

// GetList はキャッシュされた一覧を返します。キャッシュがなければnilを返します。
func (c *TaskCache) GetList(ctx context.Context, userID int, gen string, filter models.TaskFilter) ([]*models.Task, error) {
	b, err := c.rdb.Get(ctx, ListKey(userID, gen, filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list := []*models.Task{}
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SetList は一覧をgenの世代のキーに保存します。
func (c *TaskCache) SetList(ctx context.Context, userID int, gen string, filter models.TaskFilter, list []*models.Task) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, ListKey(userID, gen, filter), b, c.ttl).Err()
}

// InvalidateUsers は指定ユーザーの世代を進め、古い一覧を削除します。
func (c *TaskCache) InvalidateUsers(ctx context.Context, userIDs ...int) error {
	for _, id := range userIDs {
		if err := c.rdb.Incr(ctx, genKey(id)).Err(); err != nil {
			return err
		}
		if err := c.deletePattern(ctx, userPrefix(id)+"*"); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAll はすべてのユーザーの世代を進めます。
// ユーザーやカテゴリーの削除のように影響範囲が広い変更で使います。
func (c *TaskCache) InvalidateAll(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, globalGenKey).Err(); err != nil {
		return err
	}
	return c.deletePattern(ctx, keyPrefix+"*")
}

func (c *TaskCache) deletePattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func genKey(userID int) string {
	return genKeyPrefix + strconv.Itoa(userID)
}

func userPrefix(userID int) string {
	return keyPrefix + strconv.Itoa(userID) + ":"
}

// ListKey は一覧キャッシュのキーを返します。例: tasks:list:3:g0.2:completed=true:category=any
func ListKey(userID int, gen string, filter models.TaskFilter) string {
	completed := "any"
	if filter.IsCompleted != nil {
		completed = strconv.FormatBool(*filter.IsCompleted)
	}
	category := "any"
	if filter.CategoryID != nil {
		category = strconv.Itoa(*filter.CategoryID)
	}
	return userPrefix(userID) + "g" + gen + ":completed=" + completed + ":category=" + category
}
