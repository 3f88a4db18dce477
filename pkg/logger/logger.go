// Package logger configures logrus with optional rotating file output.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the process-wide logger set by Init.
	Logger = logrus.StandardLogger()

	mu   sync.Mutex
	file *lumberjack.Logger
)

// Config controls level, format and rotation.
type Config struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // text or json
	OutputFile string `yaml:"output_file"` // console only when empty
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// Init builds the process logger and mirrors it onto the logrus standard
// logger so package-level logrus calls end up in the same place.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	var formatter logrus.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	}
	if cfg.Format == "json" {
		formatter = &logrus.JSONFormatter{}
	}

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		if file != nil {
			_ = file.Close()
		}
		file = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, file)
	}
	out := io.MultiWriter(writers...)

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetOutput(out)

	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(out)

	Logger = l
	return nil
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return Logger.WithField("component", name)
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}
