package conf

import "github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"

type Bootstrap struct {
	Server *Server        `json:"server"`
	Engine *config.Config `json:"engine"`
}

type Server struct {
	Http *HTTP `json:"http"`
	Cors *CORS `json:"cors"`
}

type HTTP struct {
	Addr string `json:"addr"`
	// Timeout 同时约束流式请求，需大于一次完整流水线的耗时
	Timeout string `json:"timeout"`
}

type CORS struct {
	AllowOrigins []string `json:"allow_origins"`
}
