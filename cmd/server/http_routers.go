package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-gateway/internal/httpapi"
)

// BuildGinRouter 构建 HTTP 路由
func BuildGinRouter(appContext *AppContext) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), corsMiddleware())

	handler := httpapi.NewHandler(appContext.Service, appContext.Producer, appContext.StatusStore)
	handler.RegisterRoutes(router)

	return router
}

// corsMiddleware 跨域资源共享中间件
// 允许所有来源访问,生产环境建议根据需求配置白名单
func corsMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header("Access-Control-Allow-Origin", "*")
		context.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		context.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if context.Request.Method == "OPTIONS" {
			context.AbortWithStatus(http.StatusNoContent)
			return
		}

		context.Next()
	}
}
