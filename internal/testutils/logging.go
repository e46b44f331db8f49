package testutils

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
)

// NewRelativeTimeLogger returns a logfmt logger that stamps each line with
// the duration since the previous one, which reads better in test output
// than absolute timestamps.
func NewRelativeTimeLogger(w io.Writer) log.Logger {
	if w == nil {
		w = os.Stderr
	}

	var rtl relTimeLogger
	rtl.last = time.Now()

	mainLog := log.NewLogfmtLogger(w)
	return log.With(mainLog, "t", log.Valuer(rtl.diffTime))
}

// Quiet returns a logger for t that is silenced unless the test runs verbose.
func Quiet(t *testing.T) log.Logger {
	if testing.Verbose() {
		return NewRelativeTimeLogger(nil)
	}
	return log.NewNopLogger()
}

type relTimeLogger struct {
	sync.Mutex

	last time.Time
}

func (rtl *relTimeLogger) diffTime() interface{} {
	rtl.Lock()
	defer rtl.Unlock()
	now := time.Now()
	since := now.Sub(rtl.last)
	rtl.last = now
	return since
}
