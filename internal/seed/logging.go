package seed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/trendscore/pkg/logger"
)

// SetupLogging configures logging to stdout and, when logFile is set, to that
// file as well. It returns a func closing the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	level := "info"
	if verbose {
		level = "debug"
	}

	var (
		w       io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = file.Close
	}

	if err := logger.InitWithOptions(logger.Options{Level: level, Writer: w}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return closeFn, nil
}
