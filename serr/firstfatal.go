package serr

import "sync"

// FirstFatal holds the first non-nil fatal error reported by any worker
// goroutine for a job. It generalizes the teacher's "first gRPC error
// wins" async-error-channel idiom to "first fatal error of any kind
// wins", since this module has no RPC layer of its own.
type FirstFatal struct {
	once sync.Once
	err  error
}

// Report records err as the job's fatal error if none has been recorded
// yet. Subsequent calls (even with a different error) are no-ops.
func (f *FirstFatal) Report(err error) {
	if err == nil {
		return
	}
	f.once.Do(func() { f.err = err })
}

// Err returns the first reported fatal error, or nil if none occurred.
func (f *FirstFatal) Err() error {
	return f.err
}
