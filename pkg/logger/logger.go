package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Leveled logger shared by the service. Thin wrapper around a package-level
// logrus logger so call sites stay short: logger.Infof(...).

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		log.SetLevel(logrus.FatalLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

// SetFormat switches between "text" (default) and "json" output.
func SetFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) { log.SetOutput(w) }

// WithFields returns an entry carrying structured fields.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return log.WithFields(logrus.Fields(fields))
}

func Debugf(format string, v ...interface{}) { log.Debugf(format, v...) }
func Infof(format string, v ...interface{})  { log.Infof(format, v...) }
func Warnf(format string, v ...interface{})  { log.Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { log.Errorf(format, v...) }
func Fatalf(format string, v ...interface{}) { log.Fatalf(format, v...) }

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { log.Debug(v) }
func Info(v string)  { log.Info(v) }
func Warn(v string)  { log.Warn(v) }
func Error(v string) { log.Error(v) }

// LevelString returns the current level as text.
func LevelString() string {
	switch log.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "debug"
	case logrus.WarnLevel:
		return "warn"
	case logrus.ErrorLevel:
		return "error"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "fatal"
	}
	return "info"
}
