package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Tests only print logs when run verbosely.
func init() {
	logrus.SetLevel(logrus.TraceLevel)

	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.v") && arg != "-test.v=false" {
			return
		}
	}
	logrus.StandardLogger().Out = io.Discard
}

// DisableLogging silences the standard logger until reset is called.
func DisableLogging() (reset func()) {
	originalLogOutput := logrus.StandardLogger().Out
	logrus.StandardLogger().Out = io.Discard
	return func() {
		logrus.StandardLogger().Out = originalLogOutput
	}
}
