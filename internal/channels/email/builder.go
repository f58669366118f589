package email

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"messaging-gateway/internal/messaging"
)

// MIME 相关常量
const (
	base64LineLength   = 76
	defaultContentType = "application/octet-stream"
	defaultSubject     = "(no subject)"
	mailerIdentifier   = "MessagingGateway/1.0"
	lineBreak          = "\r\n"
)

// BuildParams 邮件构建参数
type BuildParams struct {
	From        string
	FromName    string
	To          string
	ReplyTo     string
	Subject     string
	BodyHTML    string
	Priority    messaging.Priority
	Attachments []messaging.Attachment
}

// BuildMIME 构建符合 RFC822 标准的原始邮件内容
// 正文固定为 HTML;消息优先级映射为 X-Priority 头,
// 仅作为收件端的展示提示
func BuildMIME(params BuildParams) []byte {
	boundary := fmt.Sprintf("mixed_%d", time.Now().UnixNano())

	var content strings.Builder

	writeHeader(&content, "From", formatAddress(params.FromName, params.From))
	writeHeader(&content, "To", params.To)
	if params.ReplyTo != "" {
		writeHeader(&content, "Reply-To", params.ReplyTo)
	}
	writeHeader(&content, "Subject", encodeSubject(params.Subject))
	if priorityHeader := priorityHeaderValue(params.Priority); priorityHeader != "" {
		writeHeader(&content, "X-Priority", priorityHeader)
	}
	writeHeader(&content, "MIME-Version", "1.0")
	writeHeader(&content, "X-Mailer", mailerIdentifier)
	writeHeader(&content, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&content, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", boundary))
	content.WriteString(lineBreak)

	writeBodyPart(&content, params.BodyHTML, boundary)
	for _, attachment := range params.Attachments {
		writeAttachmentPart(&content, attachment, boundary)
	}

	content.WriteString(fmt.Sprintf("--%s--%s", boundary, lineBreak))

	return []byte(content.String())
}

// writeHeader 写入单个邮件头
func writeHeader(content *strings.Builder, name string, value string) {
	content.WriteString(fmt.Sprintf("%s: %s%s", name, value, lineBreak))
}

// writeBodyPart 写入 HTML 正文段
func writeBodyPart(content *strings.Builder, bodyHTML string, boundary string) {
	content.WriteString(fmt.Sprintf("--%s%s", boundary, lineBreak))
	content.WriteString("Content-Type: text/html; charset=UTF-8" + lineBreak)
	content.WriteString("Content-Transfer-Encoding: 8bit" + lineBreak + lineBreak)
	content.WriteString(bodyHTML)
	content.WriteString(lineBreak)
}

// writeAttachmentPart 写入单个附件段
// 内容按 Base64 编码,每 76 个字符换行以符合 MIME 标准
func writeAttachmentPart(content *strings.Builder, attachment messaging.Attachment, boundary string) {
	fileName := attachment.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("file_%d", time.Now().UnixNano())
	}

	content.WriteString(fmt.Sprintf("--%s%s", boundary, lineBreak))
	content.WriteString(fmt.Sprintf("Content-Type: %s; name=%q%s", attachmentMimeType(attachment), fileName, lineBreak))
	content.WriteString("Content-Transfer-Encoding: base64" + lineBreak)
	content.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q%s%s", fileName, lineBreak, lineBreak))

	encoded := base64.StdEncoding.EncodeToString(attachment.Content)
	for startIndex := 0; startIndex < len(encoded); startIndex += base64LineLength {
		endIndex := startIndex + base64LineLength
		if endIndex > len(encoded) {
			endIndex = len(encoded)
		}
		content.WriteString(encoded[startIndex:endIndex])
		content.WriteString(lineBreak)
	}
}

// attachmentMimeType 推断附件 MIME 类型
func attachmentMimeType(attachment messaging.Attachment) string {
	if attachment.FileType != "" {
		return attachment.FileType
	}

	extension := strings.ToLower(filepath.Ext(attachment.FileName))
	if mimeType := mime.TypeByExtension(extension); mimeType != "" {
		return mimeType
	}

	return defaultContentType
}

// formatAddress 格式化带显示名称的邮件地址
func formatAddress(displayName string, address string) string {
	if displayName == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", displayName, address)
}

// priorityHeaderValue 将消息优先级映射为 X-Priority 值
// normal 不写头,保持与大多数邮件客户端的默认展示一致
func priorityHeaderValue(priority messaging.Priority) string {
	switch priority {
	case messaging.PriorityUrgent:
		return "1"
	case messaging.PriorityHigh:
		return "2"
	case messaging.PriorityLow:
		return "4"
	default:
		return ""
	}
}

// encodeSubject 编码邮件主题
// 包含非 ASCII 字符时使用 RFC2047 Base64 编码
func encodeSubject(subject string) string {
	if subject == "" {
		return defaultSubject
	}

	for _, character := range subject {
		if character > 127 {
			encoded := base64.StdEncoding.EncodeToString([]byte(subject))
			return fmt.Sprintf("=?UTF-8?B?%s?=", encoded)
		}
	}

	return subject
}
