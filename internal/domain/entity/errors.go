package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrLLMEmptyResponse is returned when the LLM replies without content
	ErrLLMEmptyResponse = errors.New("no response content from LLM")

	// Upload errors
	ErrInvalidCategory     = errors.New("invalid file category")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrEmptyFile           = errors.New("file is empty")
	ErrNoFileUploaded      = errors.New("no file uploaded")
)

// ParseError reports malformed expense input. Row is 0 for header errors.
type ParseError struct {
	Row    int
	Column string
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("Row %d: %s", e.Row, e.Msg)
	}
	return e.Msg
}

// LLMContractError reports LLM output that is not JSON or has the wrong shape
type LLMContractError struct {
	Stage string
	Msg   string
	Err   error
}

func (e *LLMContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
}

func (e *LLMContractError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsLLMError reports whether err came from a broken LLM response
func IsLLMError(err error) bool {
	var ce *LLMContractError
	return errors.As(err, &ce) || errors.Is(err, ErrLLMEmptyResponse)
}
