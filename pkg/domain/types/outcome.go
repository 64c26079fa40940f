package types

// Outcome tags the result of a call to an external service. Retry policy is
// chosen by the caller from this tag.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
)

func (o Outcome) String() string {
	return string(o)
}

// Retryable reports whether the call may succeed if attempted again
func (o Outcome) Retryable() bool {
	return o == OutcomeTransient
}
