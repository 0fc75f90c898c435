package coordinator

import "errors"

var (
	ErrNoOpenCycle        = errors.New("model has no open cycle")
	ErrCycleOpen          = errors.New("model already has an open cycle")
	ErrInsufficientDiffs  = errors.New("not enough diffs to average")
	ErrCorruptedChain     = errors.New("checkpoint chain is corrupted")
	ErrInvalidModel       = errors.New("invalid model payload")
	ErrInvalidAveragePlan = errors.New("invalid averaging plan")
	ErrShuttingDown       = errors.New("coordinator is shutting down")
)

const (
	ReasonCycleLimit = "cycle limit reached"
	ReasonTimeLeft   = "not enough time left in cycle"
	ReasonReported   = "worker already reported in this cycle"
	ReasonClosing    = "cycle is no longer accepting workers"
)
