package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nestmarket/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	authH *AuthHandler,
	walletH *WalletHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	auth := r.Group("/auth")
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/check-email", authH.CheckEmail)
	auth.POST("/otp/send", authH.SendOTP)
	auth.POST("/otp/resend", authH.SendOTP)
	auth.POST("/otp/verify", authH.VerifyOTP)
	auth.POST("/google", authH.GoogleLogin)

	authed := r.Group("", JWTAuthMiddleware(jwtSvc))
	authed.GET("/auth/me", authH.Me)
	authed.POST("/auth/daily-login", authH.DailyLogin)
	authed.POST("/auth/set-password", authH.SetPassword)
	authed.GET("/wallet", walletH.GetWallet)
	authed.GET("/wallet/transactions", walletH.ListTransactions)
	authed.POST("/wallet/spend", walletH.Spend)
	authed.GET("/notifications", walletH.ListNotifications)
	authed.POST("/notifications/:id/read", walletH.MarkNotificationRead)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
