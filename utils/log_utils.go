package utils

import (
	"os"

	"go.uber.org/zap"
)

var (
	debug bool
	sugar = zap.NewNop().Sugar()
)

func init() {
	debug = os.Getenv("DEBUG") != ""
}

// SetLogger routes the package helpers through logger. Caller information
// points at the helper's caller, not at this file.
func SetLogger(logger *zap.Logger) {
	sugar = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// LogInfo example:
//
// LogInfo("timezone %s", timezone)
func LogInfo(msg string, vars ...interface{}) {
	sugar.Infof(msg, vars...)
}

// LogDebug example:
//
// LogDebug("timezone %s", timezone)
func LogDebug(msg string, vars ...interface{}) {
	if debug {
		sugar.Debugf(msg, vars...)
	}
}

// LogError example:
//
// LogError(fmt.Errorf("invalid timezone %s", timezone))
func LogError(err error) {
	if err == nil {
		return
	}
	sugar.Errorw(err.Error())
}

// LogFatal logs err and exits.
func LogFatal(err error) {
	sugar.Fatalw(err.Error())
}
