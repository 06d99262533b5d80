// Package rest
package rest

import (
	"net/http"

	"cpumon/internal/config"
	"cpumon/internal/logger"
)

type RouterDeps struct {
	Dashboard *DashboardHandler
	CPU       *CPUHandler
	WsSamples http.HandlerFunc
	Metrics   http.Handler
}

func NewRouter(cfg *config.Config, log logger.Logger, deps *RouterDeps) http.Handler {
	mux := http.NewServeMux()

	globalMw := NewChain()
	globalMw.Use(Recover(log))
	globalMw.Use(RequestLogger(log))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /{$}", deps.Dashboard.Index)
	mux.HandleFunc("GET /index", deps.Dashboard.Index)

	mux.HandleFunc("GET /api/cpu/series", deps.CPU.Series)
	mux.HandleFunc("GET /api/cpu/latest", deps.CPU.Latest)

	if deps.WsSamples != nil {
		mux.HandleFunc("GET /ws/samples", deps.WsSamples)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	return globalMw.Apply(mux)
}
