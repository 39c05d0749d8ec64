package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache 基于Redis实现的缓存
// 所有键都带有命名空间前缀，便于与任务队列共用同一个Redis
type RedisCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	ctx       context.Context
}

// NewRedisCache 创建一个新的Redis缓存
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// 测试连接
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	namespace := config.Namespace
	if namespace == "" {
		namespace = "regdoc"
	}

	return &RedisCache{
		client:    client,
		namespace: namespace + ":",
		ttl:       config.DefaultTTL,
		ctx:       ctx,
	}, nil
}

func (r *RedisCache) key(k string) string {
	return r.namespace + k
}

// Get 获取缓存内容
func (r *RedisCache) Get(key string) (string, bool, error) {
	value, err := r.client.Get(r.ctx, r.key(key)).Result()
	if err == redis.Nil {
		// 键不存在
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 设置缓存内容，ttl为0时使用默认过期时间
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.ttl
	}
	return r.client.Set(r.ctx, r.key(key), value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	return r.client.Del(r.ctx, r.key(key)).Err()
}

// DeletePrefix 通过 SCAN 删除指定前缀的键
func (r *RedisCache) DeletePrefix(prefix string) error {
	return r.deleteMatching(r.key(prefix) + "*")
}

// Clear 清空命名空间下的全部缓存
func (r *RedisCache) Clear() error {
	return r.deleteMatching(r.namespace + "*")
}

func (r *RedisCache) deleteMatching(pattern string) error {
	iter := r.client.Scan(r.ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(r.ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(r.ctx, keys...).Err()
	}
	return nil
}

// Close 关闭连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// 在包初始化时注册Redis缓存
func init() {
	RegisterCache("redis", NewRedisCache)
}
