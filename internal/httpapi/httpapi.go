// Package httpapi exposes a read-only status surface over the execution
// core: health, active orders, and strategy status. Routing follows the
// reference codebase's gin.New()+gin.Recovery() setup; the optional bearer
// token check hashes the configured operator key with bcrypt the same way
// the reference web package hashes account passwords.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/strategy"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
)

// StatusSource is the subset of the execution core the API reads from.
type StatusSource interface {
	GetActiveOrders(exchangeName string) []domain.Order
}

// Server hosts the read-only status API.
type Server struct {
	engine      *gin.Engine
	source      StatusSource
	strategies  *strategy.Manager
	log         *logging.Logger
	operatorKey string // bcrypt hash; empty disables auth
}

// New builds a Server. operatorKeyHash is the bcrypt hash of the bearer
// token operators must present; pass an empty string to disable auth
// entirely (suitable for a loopback-only deployment).
func New(source StatusSource, strategies *strategy.Manager, operatorKeyHash string, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, source: source, strategies: strategies, operatorKey: operatorKeyHash, log: log}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	group := s.engine.Group("/", s.authMiddleware())
	group.GET("/health", s.handleHealth)
	group.GET("/orders/:exchange", s.handleActiveOrders)
	group.GET("/strategies", s.handleStrategies)
	group.GET("/strategies/:name", s.handleStrategyStatus)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.operatorKey == "" {
			c.Next()
			return
		}
		token := c.GetHeader("Authorization")
		if err := bcrypt.CompareHashAndPassword([]byte(s.operatorKey), []byte(token)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleActiveOrders(c *gin.Context) {
	exchangeName := c.Param("exchange")
	orders := s.source.GetActiveOrders(exchangeName)
	c.JSON(http.StatusOK, gin.H{"exchange": exchangeName, "orders": orders})
}

func (s *Server) handleStrategies(c *gin.Context) {
	names := s.strategies.Names()
	out := make(gin.H, len(names))
	for _, name := range names {
		status, _ := s.strategies.Status(name)
		out[name] = status
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStrategyStatus(c *gin.Context) {
	name := c.Param("name")
	strat, ok := s.strategies.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":   strat.Name(),
		"type":   strat.Type(),
		"status": strat.Status(),
	})
}

// HashOperatorKey hashes a plaintext operator token for storage in
// config.HTTPConfig.OperatorKey.
func HashOperatorKey(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
