package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler pings the database. Failures are logged; the response only
// says unhealthy.
func HealthHandler(pool *pgxpool.Pool, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)
		if err != nil {
			logger.Error().Err(err).Msg("database health check failed")
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}

// PoolCollector exposes pgxpool statistics as Prometheus gauges.
type PoolCollector struct {
	pool *pgxpool.Pool
	desc *prometheus.Desc
}

func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		desc: prometheus.NewDesc(
			"mireview_db_connection_pool",
			"Database connection pool statistics",
			[]string{"stat"}, nil,
		),
	}
}

func (p *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.desc
}

func (p *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := GetPoolStats(p.pool)
	for stat, v := range map[string]float64{
		"total":    float64(s.TotalConns),
		"idle":     float64(s.IdleConns),
		"acquired": float64(s.AcquiredConns),
		"max":      float64(s.MaxConns),
	} {
		ch <- prometheus.MustNewConstMetric(p.desc, prometheus.GaugeValue, v, stat)
	}
}
