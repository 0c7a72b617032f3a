package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger keeps the action-first logging convention used across all services:
// every entry carries "service" and "action" so log lines stay grep-able.
type Logger struct {
	entry *logrus.Entry
}

func New(service string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	host, _ := os.Hostname()
	return &Logger{entry: l.WithFields(logrus.Fields{"service": service, "hostname": host})}
}

func (l *Logger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.entry.Logger.SetLevel(parsed)
}

func (l *Logger) Info(action string, fields map[string]any) {
	l.entry.WithField("action", action).WithFields(logrus.Fields(fields)).Info(action)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.entry.WithField("action", action).WithFields(logrus.Fields(fields)).Debug(action)
}

func (l *Logger) Warn(action string, fields map[string]any) {
	l.entry.WithField("action", action).WithFields(logrus.Fields(fields)).Warn(action)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	e := l.entry.WithField("action", action).WithFields(logrus.Fields(fields))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(action)
}
