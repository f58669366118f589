package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-gateway/internal/messaging"
	"messaging-gateway/internal/queue"
	"messaging-gateway/internal/status"
)

// ==================== 常量定义 ====================

const (
	// 发送模式
	modeSync  = "sync"
	modeAsync = "async"
)

// ==================== 数据结构 ====================

// SendPayload 发送请求体
type SendPayload struct {
	Channel   messaging.ChannelType `json:"channel" binding:"required"`
	Recipient messaging.Recipient   `json:"recipient" binding:"required"`
	Message   messaging.Message     `json:"message" binding:"required"`
}

// UnifiedResponse 统一响应信封
type UnifiedResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ==================== Handler 处理器 ====================

// Handler 投递网关 HTTP 处理器
// producer 与 statusStore 均为可选依赖,未注入时对应端点降级
type Handler struct {
	service     *messaging.UnifiedMessagingService
	producer    queue.Producer
	statusStore status.Store
}

// NewHandler 创建处理器
func NewHandler(service *messaging.UnifiedMessagingService, producer queue.Producer, statusStore status.Store) *Handler {
	return &Handler{
		service:     service,
		producer:    producer,
		statusStore: statusStore,
	}
}

// RegisterRoutes 注册全部路由
func (handler *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", handler.HandleHealthz)

	apiGroup := router.Group("/api/v1")
	{
		apiGroup.POST("/send", handler.HandleSend)
		apiGroup.POST("/send/email", handler.HandleSendEmail)
		apiGroup.POST("/send/sms", handler.HandleSendSMS)
		apiGroup.GET("/providers/health", handler.HandleProviderHealth)
		apiGroup.GET("/messages/:id/status", handler.HandleMessageStatus)
	}
}

// ==================== 发送端点 ====================

// HandleSend 通用发送入口
// POST /api/v1/send?mode=sync|async
// 同步模式阻塞等待完整的故障转移结果;异步模式仅入队
func (handler *Handler) HandleSend(ginContext *gin.Context) {
	var payload SendPayload
	if err := ginContext.ShouldBindJSON(&payload); err != nil {
		writeError(ginContext, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if !isKnownChannel(payload.Channel) {
		writeError(ginContext, http.StatusBadRequest, "unknown channel: "+string(payload.Channel))
		return
	}

	if ginContext.DefaultQuery("mode", modeSync) == modeAsync {
		handler.enqueueSend(ginContext, payload)
		return
	}

	result := handler.service.Send(ginContext.Request.Context(), payload.Recipient, payload.Message, payload.Channel)
	writeResult(ginContext, result)
}

// HandleSendEmail 邮件快捷入口
// POST /api/v1/send/email
func (handler *Handler) HandleSendEmail(ginContext *gin.Context) {
	var payload struct {
		RecipientID string `json:"recipient_id"`
		Email       string `json:"email" binding:"required"`
		Subject     string `json:"subject"`
		Content     string `json:"content" binding:"required"`
	}
	if err := ginContext.ShouldBindJSON(&payload); err != nil {
		writeError(ginContext, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := handler.service.SendEmail(ginContext.Request.Context(),
		payload.RecipientID, payload.Email, payload.Subject, payload.Content)
	writeResult(ginContext, result)
}

// HandleSendSMS 短信快捷入口
// POST /api/v1/send/sms
func (handler *Handler) HandleSendSMS(ginContext *gin.Context) {
	var payload struct {
		RecipientID string `json:"recipient_id"`
		Phone       string `json:"phone" binding:"required"`
		Content     string `json:"content" binding:"required"`
	}
	if err := ginContext.ShouldBindJSON(&payload); err != nil {
		writeError(ginContext, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := handler.service.SendSMS(ginContext.Request.Context(),
		payload.RecipientID, payload.Phone, payload.Content)
	writeResult(ginContext, result)
}

// enqueueSend 把发送请求写入队列
func (handler *Handler) enqueueSend(ginContext *gin.Context, payload SendPayload) {
	if handler.producer == nil {
		writeError(ginContext, http.StatusServiceUnavailable, "async mode disabled: no queue configured")
		return
	}

	request := messaging.SendRequest{
		Recipient: payload.Recipient,
		Message:   payload.Message,
		Channel:   payload.Channel,
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		writeError(ginContext, http.StatusInternalServerError, "failed to encode request: "+err.Error())
		return
	}

	if err := handler.producer.Enqueue(ginContext.Request.Context(), encoded); err != nil {
		log.Printf("[HTTP] 入队失败: %v", err)
		writeError(ginContext, http.StatusServiceUnavailable, "failed to enqueue request: "+err.Error())
		return
	}

	ginContext.JSON(http.StatusAccepted, UnifiedResponse{
		Code:    http.StatusAccepted,
		Message: "accepted",
	})
}

// ==================== 查询端点 ====================

// HandleProviderHealth 提供者健康巡检
// GET /api/v1/providers/health
func (handler *Handler) HandleProviderHealth(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, UnifiedResponse{
		Code:    http.StatusOK,
		Message: "ok",
		Data:    handler.service.GetProviderHealth(),
	})
}

// HandleMessageStatus 消息状态查询
// GET /api/v1/messages/:id/status
func (handler *Handler) HandleMessageStatus(ginContext *gin.Context) {
	if handler.statusStore == nil {
		writeError(ginContext, http.StatusServiceUnavailable, "status tracking disabled: no redis configured")
		return
	}

	messageID := ginContext.Param("id")
	deliveryStatus, err := handler.statusStore.GetStatus(ginContext.Request.Context(), messageID)
	if err != nil {
		writeError(ginContext, http.StatusInternalServerError, "failed to query status: "+err.Error())
		return
	}
	if deliveryStatus == nil {
		writeError(ginContext, http.StatusNotFound, "message not found: "+messageID)
		return
	}

	ginContext.JSON(http.StatusOK, UnifiedResponse{
		Code:    http.StatusOK,
		Message: "ok",
		Data:    deliveryStatus,
	})
}

// HandleHealthz 存活探针
// GET /healthz
func (handler *Handler) HandleHealthz(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== 响应辅助 ====================

// writeResult 根据投递结果写响应
// 链路耗尽不是 HTTP 层的错误:结果体里携带失败详情,状态码仍是 200
func writeResult(ginContext *gin.Context, result messaging.DeliveryResult) {
	ginContext.JSON(http.StatusOK, UnifiedResponse{
		Code:    http.StatusOK,
		Message: string(result.Status),
		Data:    result,
	})
}

// writeError 写错误响应
func writeError(ginContext *gin.Context, statusCode int, message string) {
	ginContext.JSON(statusCode, UnifiedResponse{
		Code:    statusCode,
		Message: message,
	})
}

// isKnownChannel 判断通道是否受支持
func isKnownChannel(channel messaging.ChannelType) bool {
	switch channel {
	case messaging.ChannelEmail, messaging.ChannelSMS, messaging.ChannelPush:
		return true
	default:
		return false
	}
}
