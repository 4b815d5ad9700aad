package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	temporallog "go.temporal.io/sdk/log"
)

// retryableHTTPLogger adapts Logger to go-retryablehttp's Logger interface.
type retryableHTTPLogger struct {
	logger *Logger
}

// GetRetryableHTTPLogger returns a retryablehttp compatible logger.
func (l *Logger) GetRetryableHTTPLogger() *retryableHTTPLogger {
	return &retryableHTTPLogger{logger: l}
}

func (r *retryableHTTPLogger) Printf(format string, v ...interface{}) {
	r.logger.Debugf(format, v...)
}

// ginLogger adapts Logger to gin's io.Writer.
type ginLogger struct {
	logger *Logger
}

// GetGinLogger returns a gin compatible writer.
func (l *Logger) GetGinLogger() *ginLogger {
	return &ginLogger{logger: l}
}

func (g *ginLogger) Write(p []byte) (n int, err error) {
	g.logger.Info(string(p))
	return len(p), nil
}

// temporalLogger adapts Logger to go.temporal.io/sdk/log.Logger.
type temporalLogger struct {
	logger *Logger
}

var _ temporallog.Logger = (*temporalLogger)(nil)
var _ temporallog.WithLogger = (*temporalLogger)(nil)

// GetTemporalLogger returns a Temporal SDK compatible logger.
func (l *Logger) GetTemporalLogger() temporallog.Logger {
	return &temporalLogger{logger: l}
}

func (t *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	t.logger.SugaredLogger.Debugw(msg, keyvals...)
}

func (t *temporalLogger) Info(msg string, keyvals ...interface{}) {
	t.logger.SugaredLogger.Infow(msg, keyvals...)
}

func (t *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	t.logger.Warnw(msg, keyvals...)
}

func (t *temporalLogger) Error(msg string, keyvals ...interface{}) {
	t.logger.Errorw(msg, keyvals...)
}

func (t *temporalLogger) With(keyvals ...interface{}) temporallog.Logger {
	return &temporalLogger{logger: t.logger.With(keyvals...)}
}

// watermillLogger adapts Logger to watermill.LoggerAdapter.
type watermillLogger struct {
	logger *Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*watermillLogger)(nil)

// GetWatermillLogger returns a watermill compatible logger.
func (l *Logger) GetWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{logger: l}
}

func (w *watermillLogger) keyvals(fields watermill.LogFields) []interface{} {
	merged := w.fields.Add(fields)
	out := make([]interface{}, 0, len(merged)*2)
	for k, v := range merged {
		out = append(out, k, v)
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Errorw(msg, append(w.keyvals(fields), "error", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Infow(msg, w.keyvals(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.SugaredLogger.Debugw(msg, w.keyvals(fields)...)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.SugaredLogger.Debugw(msg, w.keyvals(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger, fields: w.fields.Add(fields)}
}
