package logsvc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/institutohope/platform/core"
)

// ZapLogger is the development logger: structured console output, no
// external reporting. Swapped for Rollbar outside debug mode.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(conf *core.Config) (*ZapLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if conf.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Sync() error { return l.sugar.Sync() }

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, pairs(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, pairs(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, pairs(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, pairs(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.sugar.Fatalw(msg, pairs(args)...) }

// pairs renders loosely typed args as zap key/value pairs.
func pairs(args []interface{}) []interface{} {
	kv := make([]interface{}, 0, len(args)*2)
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			kv = append(kv, zap.Error(v))
		default:
			kv = append(kv, zap.Any(fmt.Sprintf("detail%d", i), v))
		}
	}
	return kv
}
