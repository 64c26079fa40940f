package model

import "github.com/secmon-lab/contrack/pkg/domain/types"

// ExtractionInput is the context sent to the extraction service
type ExtractionInput struct {
	DisplayName string
	Bio         string
	Messages    []string
}

// ExtractionResult holds the structured fields extracted for a contact.
// Company and Role are nil when unknown.
type ExtractionResult struct {
	Company *string  `json:"company"`
	Role    *string  `json:"role"`
	Topics  []string `json:"topics"`
}

// ExtractionReply is the tagged result of one extraction call
type ExtractionReply struct {
	Outcome types.Outcome
	Result  *ExtractionResult
	Err     error
}

// ExtractionSucceeded builds a success reply
func ExtractionSucceeded(result *ExtractionResult) ExtractionReply {
	return ExtractionReply{Outcome: types.OutcomeSuccess, Result: result}
}

// ExtractionTransient builds a retryable failure reply
func ExtractionTransient(err error) ExtractionReply {
	return ExtractionReply{Outcome: types.OutcomeTransient, Err: err}
}

// ExtractionPermanent builds a non-retryable failure reply
func ExtractionPermanent(err error) ExtractionReply {
	return ExtractionReply{Outcome: types.OutcomePermanent, Err: err}
}
