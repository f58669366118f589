package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/database"
)

var (
	configFile = flag.String("config", "etc/app.yaml", "配置文件路径")
	mode       = flag.String("mode", "migrate", "操作模式: migrate|cleanup")
	olderThan  = flag.Duration("older-than", 90*24*time.Hour, "cleanup 模式下保留多久以内的记录")
	dryRun     = flag.Bool("dry-run", false, "仅预览,不执行实际操作")
)

// 投递记录维护工具
// migrate: 创建/校验表结构; cleanup: 清理过期的投递记录
func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)

	if cfg.Storage.MySQL.DSN == "" {
		log.Fatal("未配置 MySQL,无需迁移")
	}

	mysqlDB, err := database.NewMySQLDB(cfg.Storage.MySQL)
	if err != nil {
		log.Fatalf("MySQL 连接失败: %v", err)
	}
	defer mysqlDB.Close()

	switch *mode {
	case "migrate":
		runMigrate(mysqlDB)
	case "cleanup":
		runCleanup(mysqlDB, *olderThan, *dryRun)
	default:
		log.Fatalf("未知操作模式: %s", *mode)
	}
}

// runMigrate 创建或校验表结构
func runMigrate(mysqlDB *database.MySQLDB) {
	if err := mysqlDB.InitTables(); err != nil {
		log.Fatalf("表初始化失败: %v", err)
	}
	log.Println("表结构迁移完成")
}

// runCleanup 清理过期的投递记录
func runCleanup(mysqlDB *database.MySQLDB, retention time.Duration, preview bool) {
	cutoff := time.Now().Add(-retention).Unix()
	query := fmt.Sprintf("created_at < %d", cutoff)

	if preview {
		var count int64
		row := mysqlDB.QueryRow("SELECT COUNT(*) FROM " + database.TableDeliveryRecords + " WHERE " + query)
		if err := row.Scan(&count); err != nil {
			log.Fatalf("统计过期记录失败: %v", err)
		}
		log.Printf("[dry-run] 将删除 %d 条过期投递记录", count)
		return
	}

	result, err := mysqlDB.Exec("DELETE FROM " + database.TableDeliveryRecords + " WHERE " + query)
	if err != nil {
		log.Fatalf("清理过期记录失败: %v", err)
	}

	deleted, _ := result.RowsAffected()
	log.Printf("已删除 %d 条过期投递记录", deleted)
}
