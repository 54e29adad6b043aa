// Package logging は zap ロガーの生成を提供します。
package logging

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New は Gin の実行モードに合わせたロガーを生成します。
// release では JSON 形式、それ以外では開発向けのコンソール形式で出力します。
func New(ginMode, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	var cfg zap.Config
	if ginMode == gin.ReleaseMode {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Install はロガーを生成し、パッケージグローバルのロガーとしても登録します。
// 戻り値の関数でグローバルを元に戻し、バッファをフラッシュします。
func Install(ginMode, level string) (*zap.Logger, func(), error) {
	logger, err := New(ginMode, level)
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(logger)
	return logger, func() {
		_ = logger.Sync()
		restore()
	}, nil
}
