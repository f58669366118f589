package messaging

import (
	"regexp"
	"strings"
)

// ==================== 常量定义 ====================

const (
	// 北美号码位数
	phoneDigitsLocal    = 10
	phoneDigitsNational = 11

	// E.164 国际号码位数范围
	phoneDigitsInternationalMin = 11
	phoneDigitsInternationalMax = 15

	// 推送令牌最小长度
	pushTokenMinLength = 16

	// 校验失败原因
	reasonInvalidEmail    = "Invalid email format"
	reasonMissingEmail    = "Recipient has no email address"
	reasonInvalidPhone    = "Invalid phone number format"
	reasonMissingPhone    = "Recipient has no phone number"
	reasonInvalidToken    = "Push token too short"
	reasonMissingToken    = "Recipient has no push token"
)

var (
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	nonDigitsPattern = regexp.MustCompile(`\D`)
)

// ==================== 邮箱校验 ====================

// ValidateEmailRecipient 校验邮件收件人
// 纯函数,不发起任何 I/O;校验失败是预期内的结果,不是异常
func ValidateEmailRecipient(recipient Recipient) (bool, string) {
	if recipient.Email == "" {
		return false, reasonMissingEmail
	}

	if !emailPattern.MatchString(recipient.Email) {
		return false, reasonInvalidEmail
	}

	return true, ""
}

// ==================== 手机号校验 ====================

// ValidateSMSRecipient 校验短信收件人
func ValidateSMSRecipient(recipient Recipient) (bool, string) {
	if recipient.Phone == "" {
		return false, reasonMissingPhone
	}

	if _, ok := NormalizePhoneE164(recipient.Phone); !ok {
		return false, reasonInvalidPhone
	}

	return true, ""
}

// NormalizePhoneE164 将手机号规范化为 E.164 格式
// 10 位或带前导 1 的 11 位号码按北美处理,自动补 +1 国家码;
// 已带 + 前缀的国际号码按位数范围校验后原样保留
func NormalizePhoneE164(phone string) (string, bool) {
	trimmed := strings.TrimSpace(phone)
	hasPlusPrefix := strings.HasPrefix(trimmed, "+")
	digits := nonDigitsPattern.ReplaceAllString(trimmed, "")

	if hasPlusPrefix {
		if len(digits) < phoneDigitsInternationalMin || len(digits) > phoneDigitsInternationalMax {
			return "", false
		}
		return "+" + digits, true
	}

	switch {
	case len(digits) == phoneDigitsLocal:
		return "+1" + digits, true
	case len(digits) == phoneDigitsNational && digits[0] == '1':
		return "+" + digits, true
	default:
		return "", false
	}
}

// ==================== 推送令牌校验 ====================

// ValidatePushRecipient 校验推送收件人
// 仅要求令牌是一个非平凡的字符串,格式由各推送服务自行约束
func ValidatePushRecipient(recipient Recipient) (bool, string) {
	if recipient.PushToken == "" {
		return false, reasonMissingToken
	}

	if len(strings.TrimSpace(recipient.PushToken)) < pushTokenMinLength {
		return false, reasonInvalidToken
	}

	return true, ""
}
