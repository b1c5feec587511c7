package job

import (
	"errors"
	"fmt"
)

// Kind classifies why a print job failed
type Kind int

const (
	KindUnknown Kind = iota
	KindNoContent
	KindNoPrintersFound
	KindPrinterNotFound
	KindEnumerationFailed
	KindOpenFailed
	KindTransferFailed
	KindCloseFailed
	KindTimeout
)

var (
	ErrNoContent         = errors.New("no content")
	ErrNoPrintersFound   = errors.New("no printers found")
	ErrPrinterNotFound   = errors.New("printer not found")
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrOpenFailed        = errors.New("open failed")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrCloseFailed       = errors.New("close failed")
	ErrTimeout           = errors.New("timeout")
)

var kindErrors = map[Kind]error{
	KindNoContent:         ErrNoContent,
	KindNoPrintersFound:   ErrNoPrintersFound,
	KindPrinterNotFound:   ErrPrinterNotFound,
	KindEnumerationFailed: ErrEnumerationFailed,
	KindOpenFailed:        ErrOpenFailed,
	KindTransferFailed:    ErrTransferFailed,
	KindCloseFailed:       ErrCloseFailed,
	KindTimeout:           ErrTimeout,
}

func (k Kind) String() string {
	switch k {
	case KindNoContent:
		return "no_content"
	case KindNoPrintersFound:
		return "no_printers_found"
	case KindPrinterNotFound:
		return "printer_not_found"
	case KindEnumerationFailed:
		return "enumeration_failed"
	case KindOpenFailed:
		return "open_failed"
	case KindTransferFailed:
		return "transfer_failed"
	case KindCloseFailed:
		return "close_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// PrintError is the structured failure of a print job. errors.Is matches
// both the kind sentinel (ErrTimeout, ...) and the underlying cause.
type PrintError struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, cause error) *PrintError {
	return &PrintError{Kind: kind, Err: cause}
}

func (e *PrintError) Error() string {
	switch e.Kind {
	case KindNoContent:
		return "No content provided"
	case KindNoPrintersFound:
		return "No USB printers found"
	case KindPrinterNotFound:
		return "Printer not found"
	case KindTimeout:
		return "Print job timeout"
	case KindEnumerationFailed:
		return e.withCause("Failed to list printers")
	case KindOpenFailed:
		return e.withCause("Failed to open printer")
	case KindTransferFailed:
		return e.withCause("Failed to send print job")
	case KindCloseFailed:
		return e.withCause("Failed to close printer")
	default:
		return e.withCause("Print job failed")
	}
}

func (e *PrintError) withCause(msg string) string {
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *PrintError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindErrors[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the failure kind carried by err
func KindOf(err error) Kind {
	var printErr *PrintError
	if errors.As(err, &printErr) {
		return printErr.Kind
	}
	return KindUnknown
}
