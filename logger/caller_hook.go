package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// hiddenCallers are function-name fragments that never count as a call site.
var hiddenCallers = []string{"sirupsen/logrus", "quotestream/logger."}

// callerHook points the reported caller at the first frame outside logrus
// and this package, so wrapped Entry methods log the real call site.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !hidden(frame.Function) {
			entry.Caller = &frame
			break
		}
		if !more {
			break
		}
	}
	return nil
}

func hidden(fn string) bool {
	for _, h := range hiddenCallers {
		if strings.Contains(fn, h) {
			return true
		}
	}
	return false
}
