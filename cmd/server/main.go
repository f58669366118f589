package main

import (
	"log"
)

func main() {
	log.Println("[Main] 消息投递网关启动中...")

	runner := NewApplicationRunner()
	runner.Run()

	log.Println("[Main] 消息投递网关已停止")
}
