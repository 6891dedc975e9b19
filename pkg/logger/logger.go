package logger

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

type Logger struct {
	service  string
	hostname string
	base     *logrus.Logger
}

func NewLogger(service string) *Logger {
	return New(service, os.Stdout)
}

// New builds a logger writing JSON lines to out.
func New(service string, out io.Writer) *Logger {
	hostname, _ := os.Hostname()

	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	return &Logger{
		service:  service,
		hostname: hostname,
		base:     base,
	}
}

// SetLevel accepts logrus level names; unknown names are ignored.
func (l *Logger) SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.base.SetLevel(lvl)
	}
}

func (l *Logger) Info(requestID, action, message string) {
	l.entry(requestID, action).Info(message)
}

func (l *Logger) Debug(requestID, action, message string) {
	l.entry(requestID, action).Debug(message)
}

func (l *Logger) Warn(requestID, action, message string) {
	l.entry(requestID, action).Warn(message)
}

func (l *Logger) Error(requestID, action, message string, err error) {
	entry := l.entry(requestID, action)
	if err != nil {
		buf := make([]byte, 1024)
		n := runtime.Stack(buf, false)
		entry = entry.WithField("error", map[string]string{
			"msg":   err.Error(),
			"stack": string(buf[:n]),
		})
	}
	entry.Error(message)
}

func (l *Logger) entry(requestID, action string) *logrus.Entry {
	return l.base.WithFields(logrus.Fields{
		"service":    l.service,
		"action":     action,
		"hostname":   l.hostname,
		"request_id": requestID,
	})
}

// WithRequestID stores the request id used by RequestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
