package database

import (
	"database/sql"
	"fmt"
	"log"

	"messaging-gateway/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

// 表名常量
const (
	TableDeliveryRecords = "delivery_records"
)

// SQL 建表语句常量
// 使用 InnoDB 引擎支持事务,utf8mb4 支持完整 Unicode 字符集
const (
	// createDeliveryRecordsTableSQL 投递记录表
	// 每次发送的最终结果落一条记录,用于审计与成本统计
	createDeliveryRecordsTableSQL = `
		CREATE TABLE IF NOT EXISTS delivery_records (
			message_id VARCHAR(255) PRIMARY KEY COMMENT '消息ID',
			recipient_id VARCHAR(128) NOT NULL COMMENT '收件人关联键',
			channel VARCHAR(32) NOT NULL COMMENT '投递通道',
			provider VARCHAR(64) COMMENT '实际完成投递的提供者',
			status VARCHAR(32) NOT NULL COMMENT '最终状态',
			error_message TEXT COMMENT '错误信息',
			error_kind VARCHAR(32) COMMENT '错误分类',
			cost DECIMAL(10,6) DEFAULT 0 COMMENT '投递成本',
			cost_currency VARCHAR(8) COMMENT '成本币种',
			attempted_providers INT DEFAULT 0 COMMENT '实际尝试的提供者数',
			sent_at BIGINT NOT NULL COMMENT '发出时间戳',
			created_at BIGINT NOT NULL COMMENT '记录时间戳',
			INDEX idx_recipient_created (recipient_id, created_at DESC),
			INDEX idx_channel_status (channel, status),
			INDEX idx_provider (provider),
			INDEX idx_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='消息投递记录表'
	`
)

// MySQLDB MySQL 数据库连接管理器
// 封装连接池和表初始化逻辑
type MySQLDB struct {
	*sql.DB
}

// NewMySQLDB 创建 MySQL 数据库连接
// 自动配置连接池参数并测试连接可用性
func NewMySQLDB(mysqlConfig config.MySQLConfig) (*MySQLDB, error) {
	database, err := sql.Open("mysql", mysqlConfig.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	database.SetMaxOpenConns(mysqlConfig.MaxOpenConns)
	database.SetMaxIdleConns(mysqlConfig.MaxIdleConns)
	database.SetConnMaxLifetime(mysqlConfig.ConnMaxLifetime)

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[MYSQL] 数据库连接成功")
	return &MySQLDB{DB: database}, nil
}

// InitTables 初始化数据库表结构
// 幂等操作,多次执行不会产生副作用
func (database *MySQLDB) InitTables() error {
	if _, err := database.Exec(createDeliveryRecordsTableSQL); err != nil {
		log.Printf("[MYSQL] 创建表 %s 失败: %v", TableDeliveryRecords, err)
		return fmt.Errorf("failed to create table %s: %w", TableDeliveryRecords, err)
	}

	log.Printf("[MYSQL] 数据库表初始化完成")
	return nil
}

// Close 关闭数据库连接
func (database *MySQLDB) Close() error {
	if err := database.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
