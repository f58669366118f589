package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ==================== 常量定义 ====================

const (
	defaultTTL       = 24 * time.Hour
	defaultNamespace = "messaging"

	redisKeyStatusFormat  = "%s:delivery_status:%s"
	redisKeyHistoryFormat = "%s:delivery_history:%s"
)

// ==================== 数据结构 ====================

// DeliveryStatus 投递状态记录
// Redis 里按消息ID存一条当前状态,另有一条历史列表
type DeliveryStatus struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Store 状态存储接口
type Store interface {
	SaveStatus(ctx context.Context, status *DeliveryStatus) error
	GetStatus(ctx context.Context, messageID string) (*DeliveryStatus, error)
	GetStatusHistory(ctx context.Context, messageID string) ([]*DeliveryStatus, error)
	UpdateStatus(ctx context.Context, messageID string, newStatus string, errorMessage string) error
}

// RedisStore Redis 状态存储实现
// UpdateStatus 同时满足编排器的状态写入接口
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// ==================== 构造函数 ====================

// NewRedisStore 创建 Redis 状态存储实例
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

// ==================== 核心方法 ====================

// SaveStatus 保存当前状态并追加历史
func (store *RedisStore) SaveStatus(ctx context.Context, status *DeliveryStatus) error {
	if status.MessageID == "" {
		return fmt.Errorf("message_id is required")
	}

	now := time.Now().Unix()
	if status.CreatedAt == 0 {
		status.CreatedAt = now
	}
	status.UpdatedAt = now

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	statusKey := store.buildStatusKey(status.MessageID)
	if err := store.client.Set(ctx, statusKey, statusJSON, store.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status to redis: %w", err)
	}

	store.appendHistory(ctx, status.MessageID, statusJSON)

	log.Printf("[StatusStore] 状态已保存: %s -> %s", status.MessageID, status.Status)
	return nil
}

// GetStatus 获取当前状态
// 记录不存在时返回 (nil, nil)
func (store *RedisStore) GetStatus(ctx context.Context, messageID string) (*DeliveryStatus, error) {
	data, err := store.client.Get(ctx, store.buildStatusKey(messageID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var status DeliveryStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

// GetStatusHistory 获取状态变迁历史(按时间顺序)
func (store *RedisStore) GetStatusHistory(ctx context.Context, messageID string) ([]*DeliveryStatus, error) {
	dataList, err := store.client.LRange(ctx, store.buildHistoryKey(messageID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get status history from redis: %w", err)
	}

	var history []*DeliveryStatus
	for _, data := range dataList {
		var status DeliveryStatus
		if err := json.Unmarshal([]byte(data), &status); err == nil {
			history = append(history, &status)
		}
	}

	return history, nil
}

// UpdateStatus 更新消息状态
// 记录不存在时新建一条;该方法是编排器注入的状态写入点
func (store *RedisStore) UpdateStatus(ctx context.Context, messageID string, newStatus string, errorMessage string) error {
	existingStatus, err := store.GetStatus(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to get existing status: %w", err)
	}

	if existingStatus == nil {
		existingStatus = &DeliveryStatus{
			MessageID: messageID,
			CreatedAt: time.Now().Unix(),
		}
	}

	existingStatus.Status = newStatus
	existingStatus.Error = errorMessage

	return store.SaveStatus(ctx, existingStatus)
}

// ==================== 私有方法 ====================

func (store *RedisStore) buildStatusKey(messageID string) string {
	return fmt.Sprintf(redisKeyStatusFormat, store.namespace, messageID)
}

func (store *RedisStore) buildHistoryKey(messageID string) string {
	return fmt.Sprintf(redisKeyHistoryFormat, store.namespace, messageID)
}

// appendHistory 追加历史记录,失败仅记日志
func (store *RedisStore) appendHistory(ctx context.Context, messageID string, statusJSON []byte) {
	historyKey := store.buildHistoryKey(messageID)

	if err := store.client.RPush(ctx, historyKey, statusJSON).Err(); err != nil {
		log.Printf("[StatusStore] 追加状态历史失败 (%s): %v", messageID, err)
		return
	}
	store.client.Expire(ctx, historyKey, store.ttl)
}
