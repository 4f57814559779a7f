package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/gateway/internal/conf"
	"github.com/iWorld-y/answer_engine/app/gateway/internal/server"
	"github.com/iWorld-y/answer_engine/app/gateway/internal/service"
)

// initApp 组装引擎、服务与 HTTP Server
func initApp(sc *conf.Server, ec *config.Config, logger log.Logger) (*kratos.App, func(), error) {
	if sc == nil {
		sc = &conf.Server{}
	}
	eng, cleanup, err := server.NewAnswerEngine(ec, logger)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewAnswerService(eng, logger)
	hs := server.NewHTTPServer(sc, svc, logger)
	return newApp(logger, hs), cleanup, nil
}

func newApp(logger log.Logger, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
}
