package mapreduce

import "errors"

var (
	ErrUnknownJob  = errors.New("unknown job")
	ErrUnknownTask = errors.New("unknown task")
	ErrNotReady    = errors.New("not ready")
	ErrInvalidJob  = errors.New("invalid job")
	ErrNoWorker    = errors.New("missing worker id")
)
