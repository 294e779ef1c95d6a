package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/heartbeat-keeper/internal/handler"
	"github.com/angeloszaimis/heartbeat-keeper/internal/metrics"
)

func setupRouter(status *handler.StatusHandler, metricsCollector *metrics.Collector, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/status", status)
	mux.HandleFunc("/metrics", metricsCollector.Handler())

	return handler.Logging(mux, log)
}
