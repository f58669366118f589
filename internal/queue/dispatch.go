package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"messaging-gateway/internal/messaging"
)

// DeliveryHandler 异步投递请求的消费处理器
// 把队列消息还原成投递请求并驱动编排器
type DeliveryHandler struct {
	service *messaging.UnifiedMessagingService
}

// NewDeliveryHandler 创建投递处理器
func NewDeliveryHandler(service *messaging.UnifiedMessagingService) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

// Handle 处理单条投递请求
// 编排器自身不返回错误;这里只在全链路瞬时失败时返回错误,
// 让 NSQ 重投 —— 永久失败与校验失败重投也不会成功,直接确认
func (handler *DeliveryHandler) Handle(ctx context.Context, payload []byte, attempts uint16) error {
	var request messaging.SendRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		// 消息体损坏,重投无意义
		log.Printf("[DeliveryHandler] 丢弃无法解析的消息: %v", err)
		return nil
	}

	result := handler.service.Send(ctx, request.Recipient, request.Message, request.Channel)
	if result.Status == messaging.StatusSent {
		return nil
	}

	if result.ErrorKind == messaging.ErrorKindTransient {
		log.Printf("[DeliveryHandler] 瞬时失败,等待重投 (attempts=%d recipient=%s): %s",
			attempts, request.Recipient.ID, result.ErrorMessage)
		return fmt.Errorf("delivery failed transiently: %s", result.ErrorMessage)
	}

	log.Printf("[DeliveryHandler] 非瞬时失败,不再重投 (recipient=%s kind=%s): %s",
		request.Recipient.ID, result.ErrorKind, result.ErrorMessage)
	return nil
}
