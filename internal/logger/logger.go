package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.SugaredLogger = zap.NewNop().Sugar()

func Init(env string) {
	var cfg zap.Config

	if env == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	Log = l.Sugar()
}

func Sync() {
	if Log == nil {
		return
	}

	_ = Log.Sync()
}

// WithRequest returns a child logger carrying the request_id and
// fingerprint field convention threaded through every request-scoped log
// line, so a single grep finds every line belonging to one request.
func WithRequest(requestID, fingerprint string) *zap.SugaredLogger {
	return Log.With("request_id", requestID, "fingerprint", fingerprint)
}
