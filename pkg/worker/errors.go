package worker

import "errors"

// Pool lifecycle errors.
var (
	ErrNilProcessor       = errors.New("worker: processor function is required")
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	ErrStopTimeout        = errors.New("worker: timed out waiting for workers")
)

// joinErrors folds collected processor errors into one. nil for none.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
