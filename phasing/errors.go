package phasing

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotValid marks a transaction that can never become valid.
	ErrNotValid = errors.New("not valid")
	// ErrNotCurrentlyValid marks a transaction that is invalid against the
	// current chain state but may become valid later.
	ErrNotCurrentlyValid = errors.New("not currently valid")

	ErrMalformedAppendix = errors.New("malformed phasing appendix")
	ErrPollNotFound      = errors.New("phasing poll not found")
	ErrPollMismatch      = errors.New("phasing poll does not match transaction")
	ErrTransactionLost   = errors.New("phased transaction not found")
)

func notValid(format string, args ...any) error {
	return errors.Wrapf(ErrNotValid, format, args...)
}

func notCurrentlyValid(format string, args ...any) error {
	return errors.Wrapf(ErrNotCurrentlyValid, format, args...)
}

func IsNotValid(err error) bool {
	return errors.Is(err, ErrNotValid)
}

func IsNotCurrentlyValid(err error) bool {
	return errors.Is(err, ErrNotCurrentlyValid)
}
