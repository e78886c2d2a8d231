package models

import "errors"

var (
	ErrTriggerCronNotAllowed = errors.New("cron expression only allowed on schedule triggers")
	ErrTriggerCronRequired   = errors.New("schedule trigger requires a cron expression")
	ErrTriggerKindUnknown    = errors.New("unknown trigger kind")

	ErrStepActionUnknown = errors.New("unknown step action")
	ErrStepMissingUID    = errors.New("step uid is required")
	ErrDuplicateStepUID  = errors.New("duplicate step uid")

	ErrLintGateOutOfRange = errors.New("lint gate must be between 0 and 10")

	ErrInvalidSchedule = errors.New("invalid schedule state")
)

// StepError attaches a run failure reason to the error a step action
// returns, so the runner can classify the run without inspecting action
// internals.
type StepError struct {
	Reason FailureReason
	Err    error
}

func NewStepError(reason FailureReason, err error) *StepError {
	return &StepError{Reason: reason, Err: err}
}

func (e *StepError) Error() string {
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason carried by err, defaulting to
// FailureInternal for unclassified errors.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return FailureNone
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Reason
	}

	return FailureInternal
}
