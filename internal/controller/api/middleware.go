package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// UserIDHeader идентификатор пользователя, проставленный слоем аутентификации
	UserIDHeader = "X-User-ID"
	// OperatorHeader токен сотрудника платформы для /api/v1/operator
	OperatorHeader = "X-Operator-Token"

	userIDKey   = "user_id"
	operatorKey = "operator"
)

// LoggerMiddleware пишет строку лога на каждый запрос
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)))
	}
}

// RecoveryMiddleware не даёт панике в обработчике уронить сервер
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in handler",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Code:    string(service.CodePersistenceFailure),
					Message: "internal error",
				})
			}
		}()
		c.Next()
	}
}

// AuthMiddleware читает пользователя из X-User-ID
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    string(service.CodeUnauthorized),
				Message: "X-User-ID header is required",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// OperatorMiddleware пропускает только запросы с верным X-Operator-Token.
// Пустой token закрывает маршруты полностью
func OperatorMiddleware(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(OperatorHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn("Operator access denied",
				zap.Int64("user_id", currentUser(c)),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    string(service.CodeUnauthorized),
				Message: "operator access required",
			})
			return
		}
		c.Set(operatorKey, true)
		c.Next()
	}
}

type limiterStore struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (s *limiterStore) get(userID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[userID] = limiter
	}
	return limiter
}

// RateLimitMiddleware ограничивает число запросов пользователя в минуту.
// perMinute=0 отключает ограничение
func RateLimitMiddleware(perMinute int, logger *zap.Logger) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := &limiterStore{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}

	return func(c *gin.Context) {
		userID := c.GetInt64(userIDKey)
		if !store.get(userID).Allow() {
			logger.Warn("Rate limit exceeded", zap.Int64("user_id", userID))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests, try again later",
			})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func actorFrom(c *gin.Context) model.Actor {
	return model.Actor{
		UserID:    currentUser(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Operator:  c.GetBool(operatorKey),
	}
}
