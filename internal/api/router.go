package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the benchmark engine.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.Use(RequestLogger(api.logger))

	router.GET("/healthz", api.HealthHandler)

	v1 := router.Group("/api/v1")

	benchmarks := v1.Group("/benchmarks")
	{
		benchmarks.POST("", api.CreateBenchmarkHandler)
		benchmarks.GET("/:id", api.GetBenchmarkHandler)
		benchmarks.POST("/:id/runs", api.StartRunHandler)
	}

	runs := v1.Group("/runs")
	{
		runs.GET("", api.ListRunsHandler)
		runs.GET("/:id", api.GetRunHandler)
		runs.POST("/:id/pause", api.PauseRunHandler)
		runs.POST("/:id/resume", api.ResumeRunHandler)
		runs.POST("/:id/cancel", api.CancelRunHandler)
	}

	executions := v1.Group("/executions")
	{
		executions.GET("", api.ListExecutionsHandler)
		executions.GET("/:id", api.GetExecutionHandler)
		executions.GET("/:id/score", api.GetExecutionScoreHandler)
	}

	metrics := v1.Group("/metrics")
	{
		metrics.GET("/timeseries", api.TimeSeriesHandler)
		metrics.GET("/aggregate", api.AggregateHandler)
	}

	v1.GET("/scores", api.ListScoresHandler)
}
