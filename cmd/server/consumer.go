package main

import (
	"log"
)

// startDeliveryConsumer 启动异步投递消费者
// 消费者未配置时静默跳过;Run 阻塞,放到独立 goroutine 运行
func startDeliveryConsumer(appContext *AppContext) {
	if appContext.Consumer == nil {
		log.Println("[Runner] 未启用 NSQ 消费者,跳过")
		return
	}

	go func() {
		if err := appContext.Consumer.Run(); err != nil {
			log.Printf("[Runner] NSQ 消费者异常退出: %v", err)
		}
	}()

	log.Println("[Runner] 异步投递消费者启动完成")
}
