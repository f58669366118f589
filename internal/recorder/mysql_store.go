package recorder

import (
	"context"
	"fmt"
	"time"

	"messaging-gateway/internal/database"
	"messaging-gateway/internal/messaging"
)

// insertDeliveryRecordSQL 投递记录插入语句
// 同一消息ID重复写入时以最新结果为准
const insertDeliveryRecordSQL = `
	INSERT INTO delivery_records
		(message_id, recipient_id, channel, provider, status,
		 error_message, error_kind, cost, cost_currency,
		 attempted_providers, sent_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		status = VALUES(status),
		error_message = VALUES(error_message),
		error_kind = VALUES(error_kind),
		cost = VALUES(cost),
		attempted_providers = VALUES(attempted_providers)
`

// MySQLRecorder 投递记录归档器
// 实现编排器的记录持久化接口,每次投递落一条审计记录
type MySQLRecorder struct {
	database *database.MySQLDB
}

// NewMySQLRecorder 创建投递记录归档器
func NewMySQLRecorder(mysqlDatabase *database.MySQLDB) *MySQLRecorder {
	return &MySQLRecorder{
		database: mysqlDatabase,
	}
}

// SaveResult 持久化一条投递结果
func (recorder *MySQLRecorder) SaveResult(ctx context.Context, result messaging.DeliveryResult) error {
	_, err := recorder.database.ExecContext(ctx, insertDeliveryRecordSQL,
		result.MessageID,
		result.RecipientID,
		string(result.Channel),
		metadataString(result.Metadata, "provider"),
		string(result.Status),
		result.ErrorMessage,
		string(result.ErrorKind),
		result.Cost,
		metadataString(result.Metadata, "cost_currency"),
		metadataInt(result.Metadata, "attempted_providers"),
		result.SentAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}

	return nil
}

// metadataString 从结果元数据中取字符串值
func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}

// metadataInt 从结果元数据中取整数值
func metadataInt(metadata map[string]any, key string) int {
	if metadata == nil {
		return 0
	}
	switch value := metadata[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return 0
	}
}
