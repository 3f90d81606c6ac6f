package lunalove

import "log"

// Logger is the minimal logging surface the SDK writes to. The standard
// library *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...interface{})
}

func defaultLogger() Logger {
	return log.Default()
}
