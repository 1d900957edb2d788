package obs

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the process logger. When logFile is non-empty the
// log is written there with rotation in addition to stderr.
func SetupLogging(verbose bool, logFile string) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if logFile == "" {
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, rotated))
}
