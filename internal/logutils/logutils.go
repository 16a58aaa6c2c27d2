package logutils

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log = newLogger(logrus.InfoLevel)

var output io.Writer = os.Stderr

type Logger struct {
	entry *logrus.Entry
}

func newLogger(level logrus.Level) *Logger {
	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(base)}
}

// InitLogger replaces the global logger. Unknown levels fall back to info.
func InitLogger(level string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		Log = newLogger(logrus.InfoLevel)
		Log.Warnf("Invalid log level '%s', defaulting to 'info'", level)
		return
	}
	Log = newLogger(parsed)
	Log.Infof("Log level set to %v", parsed)
}

// EnableFileOutput mirrors log output into a size-rotated file. It affects
// loggers created by later InitLogger calls as well as the current one.
func EnableFileOutput(path string, maxSizeMB, maxBackups int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	output = io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	})
	Log.entry.Logger.SetOutput(output)
	return nil
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debug(message string)              { l.entry.Debug(message) }
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(message string)               { l.entry.Info(message) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(message string)               { l.entry.Warn(message) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(message string)              { l.entry.Error(message) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}

// Level reports the active level name, mostly for startup logging.
func (l *Logger) Level() string {
	return l.entry.Logger.GetLevel().String()
}
