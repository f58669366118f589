package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"messaging-gateway/internal/config"
)

// SMTP 协议默认端口常量
const (
	DefaultSMTPPort         = 25  // 普通 SMTP 端口
	DefaultSMTPSSLPort      = 465 // SSL/TLS 加密端口
	DefaultSMTPSTARTTLSPort = 587 // STARTTLS 升级端口
	DefaultDialTimeout      = 30 * time.Second
)

// SMTPTransport 负责底层 SMTP 连接、认证和邮件发送
// 统一管理 SSL、STARTTLS 等不同安全协议的连接方式;
// 每次 SendRaw 建立并关闭一条连接,不做连接复用
type SMTPTransport struct {
	smtpConfig config.SMTPProvider
}

// NewSMTPTransport 创建 SMTP 传输实例
func NewSMTPTransport(smtpConfig config.SMTPProvider) *SMTPTransport {
	return &SMTPTransport{
		smtpConfig: smtpConfig,
	}
}

// SendRaw 发送原始邮件数据
// rawMessage: 完整的 MIME 格式邮件内容(包含头部和正文)
// recipients: 信封收件人列表
func (transport *SMTPTransport) SendRaw(ctx context.Context, rawMessage []byte, recipients []string) error {
	if len(recipients) == 0 {
		return errors.New("recipients list cannot be empty")
	}

	client, closeClient, err := transport.dial(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	if err := transport.authenticate(client); err != nil {
		return err
	}

	if err := client.Mail(transport.smtpConfig.From); err != nil {
		return fmt.Errorf("MAIL FROM command failed: %w", err)
	}

	for _, recipient := range recipients {
		if recipient == "" {
			continue
		}
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO command failed for %s: %w", recipient, err)
		}
	}

	return transport.writeMessageData(client, rawMessage)
}

// resolvePort 根据安全协议推断默认端口
func (transport *SMTPTransport) resolvePort() int {
	if transport.smtpConfig.SMTPPort > 0 {
		return transport.smtpConfig.SMTPPort
	}

	if transport.smtpConfig.UseSSL {
		return DefaultSMTPSSLPort
	}

	if transport.smtpConfig.UseTLS {
		return DefaultSMTPSTARTTLSPort
	}

	return DefaultSMTPPort
}

// dial 建立 SMTP 客户端连接
// 根据配置自动选择 SSL 或 STARTTLS 协议,返回客户端和清理函数
func (transport *SMTPTransport) dial(ctx context.Context) (*smtp.Client, func(), error) {
	if transport.smtpConfig.SMTPHost == "" {
		return nil, nil, errors.New("smtp host cannot be empty")
	}

	connection, err := transport.dialConnection(ctx)
	if err != nil {
		return nil, nil, err
	}

	// SSL 需要在 TCP 连接上直接建立 TLS 层
	if transport.smtpConfig.UseSSL {
		tlsConnection := tls.Client(connection, transport.tlsConfig())
		if err := tlsConnection.Handshake(); err != nil {
			_ = connection.Close()
			return nil, nil, fmt.Errorf("ssl handshake failed: %w", err)
		}
		return transport.wrapClient(tlsConnection, connection)
	}

	client, closeClient, err := transport.wrapClient(connection, connection)
	if err != nil {
		return nil, nil, err
	}

	// STARTTLS 在普通连接建立后升级为加密连接
	if transport.smtpConfig.UseTLS {
		if err := client.StartTLS(transport.tlsConfig()); err != nil {
			closeClient()
			return nil, nil, fmt.Errorf("starttls upgrade failed: %w", err)
		}
	}

	return client, closeClient, nil
}

// dialConnection 建立底层 TCP 连接
// 支持 context 超时控制,确保不会无限等待
func (transport *SMTPTransport) dialConnection(ctx context.Context) (net.Conn, error) {
	address := net.JoinHostPort(transport.smtpConfig.SMTPHost, fmt.Sprintf("%d", transport.resolvePort()))

	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		var dialer net.Dialer
		connection, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("failed to dial smtp server %s: %w", address, err)
		}

		// 用截止时间约束整条连接上的后续读写
		_ = connection.SetDeadline(deadline)
		return connection, nil
	}

	connection, err := net.DialTimeout("tcp", address, DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial smtp server %s: %w", address, err)
	}

	return connection, nil
}

// tlsConfig 构造 TLS 配置
func (transport *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: transport.smtpConfig.SMTPHost,
	}
}

// wrapClient 在连接上创建 SMTP 客户端并返回清理函数
func (transport *SMTPTransport) wrapClient(clientConnection net.Conn, rawConnection net.Conn) (*smtp.Client, func(), error) {
	client, err := smtp.NewClient(clientConnection, transport.smtpConfig.SMTPHost)
	if err != nil {
		_ = rawConnection.Close()
		return nil, nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	closeClient := func() {
		_ = client.Quit()
		_ = rawConnection.Close()
	}

	return client, closeClient, nil
}

// authenticate 执行 SMTP 身份认证
// 部分 SMTP 服务器允许匿名发送,认证是可选的
func (transport *SMTPTransport) authenticate(client *smtp.Client) error {
	if transport.smtpConfig.Username == "" || transport.smtpConfig.Password == "" {
		return nil
	}

	authentication := smtp.PlainAuth(
		"",
		transport.smtpConfig.Username,
		transport.smtpConfig.Password,
		transport.smtpConfig.SMTPHost,
	)

	if err := client.Auth(authentication); err != nil {
		return fmt.Errorf("smtp authentication failed: %w", err)
	}

	return nil
}

// writeMessageData 写入邮件正文数据
func (transport *SMTPTransport) writeMessageData(client *smtp.Client, rawMessage []byte) error {
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err = writer.Write(rawMessage); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}

	if err = writer.Close(); err != nil {
		return fmt.Errorf("failed to close message body: %w", err)
	}

	return nil
}
