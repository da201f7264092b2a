package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/constants"
	"job-matcher-go/internal/tracing"
)

// ErrNotFound 键不存在时返回，包装底层的 redis.Nil
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("job-matcher-go/storage/redis")

// Redis 键值存储适配器，承载向量缓存、匹配会话缓存与分布式锁
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis配置不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis地址不能为空")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// OpenTelemetry钩子，记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("为Redis注册OpenTelemetry钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Ping(ctx).Err()
}

// SetJobVector 缓存岗位向量，HASH同时记录模型信息便于版本升级时失效
func (r *Redis) SetJobVector(ctx context.Context, jobID string, vector []float64) error {
	return r.setVector(ctx, fmt.Sprintf(constants.KeyJobVector, jobID), vector, constants.JobVectorCacheDuration)
}

// GetJobVector 读取岗位向量缓存，未命中返回 (nil, false, nil)
func (r *Redis) GetJobVector(ctx context.Context, jobID string) ([]float64, bool, error) {
	return r.getVector(ctx, fmt.Sprintf(constants.KeyJobVector, jobID))
}

// SetResumeVector 缓存简历向量
func (r *Redis) SetResumeVector(ctx context.Context, resumeID string, vector []float64) error {
	return r.setVector(ctx, fmt.Sprintf(constants.KeyResumeVector, resumeID), vector, constants.ResumeVectorCacheDuration)
}

// GetResumeVector 读取简历向量缓存，未命中返回 (nil, false, nil)
func (r *Redis) GetResumeVector(ctx context.Context, resumeID string) ([]float64, bool, error) {
	return r.getVector(ctx, fmt.Sprintf(constants.KeyResumeVector, resumeID))
}

// setVector 将向量以HASH形式写入并设置过期时间
func (r *Redis) setVector(ctx context.Context, cacheKey string, vector []float64, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	pipe := r.Client.Pipeline()
	pipe.HSet(ctx, cacheKey, "vector", vectorJSON)
	pipe.HSet(ctx, cacheKey, "model", constants.DefaultEmbeddingModel)
	pipe.Expire(ctx, cacheKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入向量缓存失败: %w", err)
	}
	return nil
}

// getVector 从HASH读取向量并校验模型版本，模型不匹配按未命中处理
func (r *Redis) getVector(ctx context.Context, cacheKey string) ([]float64, bool, error) {
	if r.Client == nil {
		return nil, false, fmt.Errorf("redis客户端未初始化")
	}

	vals, err := r.Client.HMGet(ctx, cacheKey, "vector", "model").Result()
	if err != nil {
		return nil, false, err
	}
	if len(vals) < 2 || vals[0] == nil {
		return nil, false, nil
	}

	vectorJSON, ok := vals[0].(string)
	if !ok || vectorJSON == "" {
		return nil, false, fmt.Errorf("向量缓存格式错误 (key=%s)", cacheKey)
	}
	if model, ok := vals[1].(string); !ok || model != constants.DefaultEmbeddingModel {
		// 模型升级后的旧缓存，视为未命中等待重算
		return nil, false, nil
	}

	var vector []float64
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return nil, false, fmt.Errorf("反序列化向量失败: %w", err)
	}
	return vector, true, nil
}

// CacheMatchSession 缓存一次匹配的排序结果(岗位ID列表)，用ZSET保留排名
// 倒序排名作分数，ZREVRANGE按分数从高到低取出即为原始排名
func (r *Redis) CacheMatchSession(ctx context.Context, resumeID string, jobIDs []string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	if len(jobIDs) == 0 {
		return nil
	}

	key := fmt.Sprintf(constants.KeyMatchSession, resumeID)

	members := make([]redis.Z, len(jobIDs))
	for i, id := range jobIDs {
		members[i] = redis.Z{
			Score:  float64(len(jobIDs) - i),
			Member: id,
		}
	}

	pipe := r.Client.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, constants.MatchSessionCacheDuration)
	_, err := pipe.Exec(ctx)
	return err
}

// GetMatchSession 分页读取缓存的匹配结果
func (r *Redis) GetMatchSession(ctx context.Context, resumeID string, cursor, limit int64) (jobIDs []string, totalCount int64, err error) {
	key := fmt.Sprintf(constants.KeyMatchSession, resumeID)
	ctx, span := redisTracer.Start(ctx, "Redis.GetMatchSession")
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		attribute.Int64("db.redis.cursor", cursor),
	)
	defer span.End()

	pipe := r.Client.Pipeline()
	countCmd := pipe.ZCard(ctx, key)
	rangeCmd := pipe.ZRevRange(ctx, key, cursor, cursor+limit-1)
	if _, err = pipe.Exec(ctx); err != nil && err != redis.Nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, 0, err
	}

	jobIDs, err = rangeCmd.Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, 0, fmt.Errorf("读取匹配会话缓存失败: %w", err)
	}
	totalCount, err = countCmd.Result()
	if err != nil {
		return jobIDs, 0, err
	}
	return jobIDs, totalCount, nil
}

// AcquireLock 尝试获取分布式锁，返回持有者标识，获取失败返回空串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseLock 释放分布式锁，Lua脚本保证只有持有者能释放
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}
	return false, nil
}
