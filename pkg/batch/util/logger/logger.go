package logger

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel はログのレベルを表す型です。
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var base = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// toLogrusLevel は LogLevel を logrus のレベルに変換します。
func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLogLevel はログレベルを設定します。
// 不明なレベルが指定された場合は警告を出して INFO で続行します。
func SetLogLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		base.SetLevel(toLogrusLevel(LevelDebug))
	case "INFO":
		base.SetLevel(toLogrusLevel(LevelInfo))
	case "WARN", "WARNING":
		base.SetLevel(toLogrusLevel(LevelWarn))
	case "ERROR":
		base.SetLevel(toLogrusLevel(LevelError))
	case "FATAL":
		base.SetLevel(toLogrusLevel(LevelFatal))
	default:
		base.SetLevel(logrus.InfoLevel)
		base.Warnf("不明なログレベル '%s' が指定されました。INFO レベルで続行します。", level)
	}
}

// GetLogLevel は現在のログレベルを返します。
func GetLogLevel() LogLevel {
	switch base.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LevelDebug
	case logrus.WarnLevel:
		return LevelWarn
	case logrus.ErrorLevel:
		return LevelError
	case logrus.FatalLevel, logrus.PanicLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SetOutput はログの出力先を変更します。テストでの出力捕捉に使用します。
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// WithField はフィールド付きのエントリを返します。
func WithField(key string, value interface{}) *logrus.Entry {
	return base.WithField(key, value)
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...interface{}) {
	base.Debugf(format, v...)
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...interface{}) {
	base.Infof(format, v...)
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...interface{}) {
	base.Fatalf(format, v...)
}
