package reconcile

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

// failureLog throttles repeated failure lines for the same order and step. An order that
// fails every cycle is still retried every cycle; only its log line is rate limited.
type failureLog struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	entries  map[string]*throttle
}

type throttle struct {
	limiter    *rate.Limiter
	suppressed int
	lastSeen   time.Time
}

func newFailureLog(interval time.Duration, now func() time.Time) *failureLog {
	return &failureLog{
		interval: interval,
		now:      now,
		entries:  map[string]*throttle{},
	}
}

func failureKey(pass, orderCode, step string) string {
	return pass + "|" + orderCode + "|" + step
}

// record logs err at error level unless the same key already logged within the interval.
// It reports whether a line was written.
func (f *failureLog) record(log logrus.FieldLogger, key, msg string, err error) bool {
	suppressed := 0
	if f.interval > 0 {
		now := f.now()
		f.mu.Lock()
		t, ok := f.entries[key]
		if !ok {
			t = &throttle{limiter: rate.NewLimiter(rate.Every(f.interval), 1)}
			f.entries[key] = t
		}
		t.lastSeen = now
		if !t.limiter.AllowN(now, 1) {
			t.suppressed++
			f.mu.Unlock()
			return false
		}
		suppressed, t.suppressed = t.suppressed, 0
		f.mu.Unlock()
	}

	entry := log.WithFields(logrus.Fields(remote.Fields(err)))
	if suppressed > 0 {
		entry = entry.WithField("suppressed", suppressed)
	}
	entry.Error(msg)
	return true
}

// forget drops the throttle state of every key of an order once it succeeds, so a later
// failure is reported straight away.
func (f *failureLog) forget(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.entries, k)
	}
}

// prune drops keys not seen for longer than maxAge (orders that left the batch).
func (f *failureLog) prune(maxAge time.Duration) {
	cutoff := f.now().Add(-maxAge)
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.entries {
		if t.lastSeen.Before(cutoff) {
			delete(f.entries, k)
		}
	}
}

func (f *failureLog) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
