package server

import (
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iWorld-y/answer_engine/app/gateway/internal/conf"
	"github.com/iWorld-y/answer_engine/app/gateway/internal/service"
)

func NewHTTPServer(c *conf.Server, s *service.AnswerService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Http != nil {
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != "" {
			if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
				opts = append(opts, http.Timeout(d))
			}
		}
	}
	var origins []string
	if c.Cors != nil {
		origins = c.Cors.AllowOrigins
	}
	opts = append(opts, http.Filter(corsFilter(origins)))
	log.NewHelper(logger).Infof("CORS 允许的来源: %v", origins)

	srv := http.NewServer(opts...)

	r := srv.Route("/")
	r.GET("/", s.Root)
	r.GET("/health", s.Health)
	r.POST("/search", s.Search)
	r.POST("/answer", s.Answer)

	// SSE 需要直接控制 ResponseWriter
	srv.HandleFunc("/chat_stream", s.ChatStream)
	srv.Handle("/metrics", promhttp.Handler())

	return srv
}

// corsFilter origins 为空时允许任意来源
func corsFilter(origins []string) http.FilterFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Add("Vary", "Origin")
			}
			if r.Method == nethttp.MethodOptions {
				w.WriteHeader(nethttp.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
