package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/examauth"
)

const claimsKey = "examauth.claims"

// requestLogger logs one line per request. Authorization headers and bodies
// are never logged.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if claims, ok := claimsFrom(c); ok {
			fields = append(fields, zap.String("user_id", claims.UserID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors.Last().Err))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		logger.Error("panic in handler", zap.Any("panic", rec), zap.String("route", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: ErrorBody{Code: "INTERNAL_ERROR", Message: "error interno"}})
	})
}

// clientInfo copies the gin-resolved client IP and the User-Agent onto the
// request context for the engine.
func clientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := examauth.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = examauth.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requireAuth(auth Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, examauth.ErrTokenMalformed)
			return
		}
		claims, err := auth.Authenticate(c.Request.Context(), header)
		if err != nil {
			if errors.Is(err, examauth.ErrDownstreamUnavailable) {
				abortWithError(c, err)
				return
			}
			abortUnauthorized(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(examauth.ContextWithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (*examauth.UserClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*examauth.UserClaims)
	return claims, ok && claims != nil
}
