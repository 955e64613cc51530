package Logger

import (
	"go.uber.org/zap"
)

// Log is the process wide logger. It discards everything until Setup runs.
var Log = zap.NewNop().Sugar()

// Setup builds the logger for the given environment name.
func Setup(env string) error {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	Log = logger.Sugar()
	return nil
}

// Named returns a child logger for a component.
func Named(name string) *zap.SugaredLogger {
	return Log.Named(name)
}

func Sync() {
	_ = Log.Sync()
}
