package execution

import "fmt"

type ErrorCode int

const (
	CustomError ErrorCode = iota
	InvalidArgument
	NotEnoughAccountKeys
	UnsupportedProgramID
	ComputationalBudgetExceeded
)

// ProgramError is the failure result an invocation hands back to the host.
type ProgramError struct {
	Code   ErrorCode
	Custom uint32
}

var (
	ErrNotEnoughAccountKeys        = &ProgramError{Code: NotEnoughAccountKeys}
	ErrUnsupportedProgramID        = &ProgramError{Code: UnsupportedProgramID}
	ErrComputationalBudgetExceeded = &ProgramError{Code: ComputationalBudgetExceeded}
	ErrInvalidArgument             = &ProgramError{Code: InvalidArgument}
)

func Custom(code uint32) error {
	return &ProgramError{Code: CustomError, Custom: code}
}

func (e *ProgramError) Error() string {
	switch e.Code {
	case InvalidArgument:
		return "invalid program argument"
	case NotEnoughAccountKeys:
		return "not enough account keys given to the instruction"
	case UnsupportedProgramID:
		return "unsupported program id"
	case ComputationalBudgetExceeded:
		return "computational budget exceeded"
	default:
		return fmt.Sprintf("custom program error: 0x%x", e.Custom)
	}
}

// Is matches on the error code (and custom value for custom errors) so
// callers can compare against the sentinels with errors.Is.
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return e.Code != CustomError || t.Custom == e.Custom
}
