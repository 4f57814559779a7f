package server

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/engine"
	aeLogger "github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
)

// NewAnswerEngine 初始化 answer_engine 引擎
func NewAnswerEngine(c *config.Config, logger log.Logger) (*engine.Engine, func(), error) {
	helper := log.NewHelper(logger)
	if c == nil {
		return nil, nil, fmt.Errorf("engine config is missing")
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid engine config: %w", err)
	}

	// 初始化日志
	if err := aeLogger.InitLogger(c.Log.Level, c.Log.File); err != nil {
		helper.Errorf("Failed to init answer_engine logger: %v", err)
		_ = aeLogger.InitLogger("info", "") // 降级处理
	}

	// 初始化核心引擎
	eng, err := engine.NewEngine(context.Background(), c)
	if err != nil {
		helper.Errorf("Failed to init engine: %v", err)
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("Cleaning up answer_engine engine")
	}
	return eng, cleanup, nil
}
