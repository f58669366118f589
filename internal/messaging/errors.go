package messaging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// 公共错误变量
var (
	ErrNoProvidersConfigured = errors.New("no providers configured for channel")
	ErrRecipientOptedOut     = errors.New("recipient opted out of channel")
)

// ErrorKind 结构化错误分类
// 编排器的停止/继续策略基于该分类,而非错误文本匹配
type ErrorKind string

const (
	// ErrorKindTransient 瞬时错误(超时、连接中断、5xx),
	// 换一个提供者或稍后重试可能成功
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindPermanent 永久错误(凭证无效、发件人未验证、硬性拒绝),
	// 换提供者大概率同样失败
	ErrorKindPermanent ErrorKind = "permanent"

	// ErrorKindValidation 校验错误(收件人地址格式不合法),
	// 不发起网络调用,不计入熔断器
	ErrorKindValidation ErrorKind = "validation"
)

// SendError 携带分类的投递错误
// 适配器必须返回该类型,编排器据此决定熔断与链路走向
type SendError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (sendError *SendError) Error() string {
	if sendError.Err != nil {
		return fmt.Sprintf("%s: %v", sendError.Message, sendError.Err)
	}
	return sendError.Message
}

func (sendError *SendError) Unwrap() error {
	return sendError.Err
}

// NewTransientError 创建瞬时错误
func NewTransientError(message string, err error) *SendError {
	return &SendError{Kind: ErrorKindTransient, Message: message, Err: err}
}

// NewPermanentError 创建永久错误
func NewPermanentError(message string, err error) *SendError {
	return &SendError{Kind: ErrorKindPermanent, Message: message, Err: err}
}

// NewValidationError 创建校验错误
func NewValidationError(message string) *SendError {
	return &SendError{Kind: ErrorKindValidation, Message: message}
}

// ClassifyError 将任意错误归类
// 优先读取结构化的 SendError,仅在错误未分类时退回文本匹配
func ClassifyError(err error) ErrorKind {
	var sendError *SendError
	if errors.As(err, &sendError) {
		return sendError.Kind
	}
	return ClassifyErrorText(err.Error())
}

// 文本分类用的特征模式
var (
	transientPatterns = []string{"timeout", "timed out", "connection", "network", "temporarily", "unavailable", "too many requests"}
	permanentPatterns = []string{"unauthorized", "forbidden", "credential", "authentication", "permission", "unverified", "401", "403"}
	serverErrorCode   = regexp.MustCompile(`^5\d\d`)
)

// ClassifyErrorText 基于子串匹配的兜底分类
// 仅用于从适配器逃逸的未分类错误;默认归为瞬时,
// 除非命中已知的认证/权限类特征
func ClassifyErrorText(text string) ErrorKind {
	lowered := strings.ToLower(text)

	for _, pattern := range permanentPatterns {
		if strings.Contains(lowered, pattern) {
			return ErrorKindPermanent
		}
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(lowered, pattern) {
			return ErrorKindTransient
		}
	}

	if serverErrorCode.MatchString(strings.TrimSpace(lowered)) {
		return ErrorKindTransient
	}

	return ErrorKindTransient
}
