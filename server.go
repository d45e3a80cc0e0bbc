package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type routes struct {
	hub       *wsHub
	feed      *gtfsRtFeed
	gatherer  prometheus.Gatherer
	staticDir string
	logger    *zap.Logger
}

func registerRoutes(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/ws", rt.hub.handleWebSocket)
	mux.Handle("/gtfsrt", rt.feed)
	mux.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	fs := http.FileServer(http.Dir(rt.staticDir))
	mux.Handle("/static/", withLogging(rt.logger, http.StripPrefix("/static/", fs)))
	mux.Handle("/", withLogging(rt.logger, fs))
}

func withLogging(logger *zap.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("http request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		h.ServeHTTP(w, r)
	})
}
