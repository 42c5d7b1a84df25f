package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/orchestrator"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

func setupServer(cfg *config.Config, orch *orchestrator.Orchestrator, log *logging.Logger, m *metrics.PipelineMetrics) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	v1 := router.Group("/v1")
	{
		v1.POST("/calculate", handleCalculate(orch, log))
	}
	router.GET("/health", handleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
}

func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.StageLogger("http:"+c.Request.URL.Path, time.Since(start), c.Writer.Status() < 500)
	}
}

func handleCalculate(orch *orchestrator.Orchestrator, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.CalculateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}

		resp, err := orch.Calculate(c.Request.Context(), &req)
		if err != nil {
			writeCalcError(c, log, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"result":  resp.Result,
			"commit":  resp.Commit,
			"timings": resp.Timings,
		})
	}
}

func writeCalcError(c *gin.Context, log *logging.Logger, err error) {
	ce := apperrors.As(err)
	if ce == nil {
		log.WithError(err).Error("unhandled calculation error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "unexpected error"})
		return
	}
	c.JSON(ce.HTTPStatus, ce)
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
	}
}
