package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const FileName = "checklist.log"

type Config struct {
	Debug bool
	Dir   string
}

// New returns a logger writing to a rotating file in cfg.Dir. Debug lowers
// the level to debug. Nothing goes to stderr, which the terminal UI owns. The
// returned closer releases the log file.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, FileName),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(fileWriter, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "checklist",
	})
	return logger, fileWriter, nil
}
