package dex

import (
	"fmt"

	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// ErrorKind classifies failures coming from venues or the ledger
type ErrorKind string

const (
	KindNetwork             ErrorKind = "network"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindReverted            ErrorKind = "reverted"
	KindMisconfigured       ErrorKind = "misconfigured"
	KindUnsupported         ErrorKind = "unsupported"
)

// AdapterError is a venue or ledger failure carried unchanged to the caller
type AdapterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError returns an ADAPTER_ERROR whose cause is an *AdapterError
func NewAdapterError(kind ErrorKind, op string, err error) error {
	return apperror.New(apperror.CodeAdapterError,
		apperror.WithContext(fmt.Sprintf("%s (%s)", op, kind)),
		apperror.WithCause(&AdapterError{Kind: kind, Op: op, Err: err}),
	)
}

// Wrap classifies err as an adapter failure unless it already carries a code
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.GetCode(err) != apperror.CodeUnknown {
		return err
	}
	return NewAdapterError(kind, op, err)
}
