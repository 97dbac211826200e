package domain

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "not found"
}

// ProcessorReason classifies why a call to the external processor failed.
type ProcessorReason string

const (
	ReasonTimeout           ProcessorReason = "timeout"
	ReasonUnauthorized      ProcessorReason = "unauthorized"
	ReasonRateLimited       ProcessorReason = "rate_limited"
	ReasonNotFound          ProcessorReason = "not_found"
	ReasonTransferNotFound  ProcessorReason = "transfer_not_found"
	ReasonInsufficientFunds ProcessorReason = "insufficient_funds"
	ReasonBusinessRule      ProcessorReason = "business_rule"
	ReasonUnknown           ProcessorReason = "unknown"
)

type ProcessorError struct {
	Op     string
	Reason ProcessorReason
	Err    error
}

func (e ProcessorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processor %s (%s): %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("processor %s (%s)", e.Op, e.Reason)
}

func (e ProcessorError) Unwrap() error { return e.Err }

// DataIntegrityError marks a stored value the service refuses to trust, such
// as cents persisted where dollars belong.
type DataIntegrityError struct {
	BookingID string
	Msg       string
}

func (e DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity on booking %s: %s", e.BookingID, e.Msg)
}

// ConcurrencyError reports a lost optimistic-update race: the row changed
// between read and write.
type ConcurrencyError struct {
	Resource string
	ID       string
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsProcessor(err error) bool {
	var target ProcessorError
	return errors.As(err, &target)
}

func IsDataIntegrity(err error) bool {
	var target DataIntegrityError
	return errors.As(err, &target)
}

func IsConcurrency(err error) bool {
	var target ConcurrencyError
	return errors.As(err, &target)
}

// Reason extracts the processor failure classification, or ReasonUnknown when
// err is not a ProcessorError.
func Reason(err error) ProcessorReason {
	var target ProcessorError
	if errors.As(err, &target) {
		return target.Reason
	}
	return ReasonUnknown
}
