package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnvLogLevel overrides the default log level when --log is not given.
const EnvLogLevel = "CEPFLOW_LOG_LEVEL"

// configureLogging sets the logrus level. An explicit flag wins over the
// environment; the environment wins over the flag default.
func configureLogging(flagLevel string, flagSet bool) error {
	level := flagLevel
	if env := strings.TrimSpace(os.Getenv(EnvLogLevel)); env != "" && !flagSet {
		level = env
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	logrus.SetLevel(parsed)
	return nil
}
