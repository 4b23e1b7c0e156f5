package convert

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/v2ray-mvp/internal/link"
	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

// ErrUnsupportedFormat is the only kind of conversion failure callers need to
// handle. Every *ConvertError matches it with errors.Is.
var ErrUnsupportedFormat = errors.New("unsupported config format")

var (
	// ErrMalformedFields: the scheme is known but a mandatory field could not
	// be decoded or located.
	ErrMalformedFields = errors.New("malformed link fields")
	// ErrNoConverter: the link kind is listed but has no runtime config form.
	ErrNoConverter = errors.New("no converter for link kind")
)

type ConvertError struct {
	AppError model.AppError
	Cause    error
}

func (e *ConvertError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ConvertError) Unwrap() error { return e.Cause }

func (e *ConvertError) Is(target error) bool { return target == ErrUnsupportedFormat }

// fallThrough marks a branch as not applicable to its input. Only the top
// level turns it into ErrUnsupportedFormat.
func fallThrough(kind link.Kind, reason string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %s: %w", kind, reason, ErrMalformedFields)
	}
	return fmt.Errorf("%s: %s: %w: %w", kind, reason, ErrMalformedFields, cause)
}

func unsupported(snippet string, cause error) error {
	hint := "supported: {...} | ss:// | vless:// | vmess://"
	if errors.Is(cause, ErrNoConverter) {
		hint = "trojan:// links can be listed but not converted"
	}
	return &ConvertError{
		AppError: model.AppError{
			Code:    "UNSUPPORTED_FORMAT",
			Message: "Unsupported config format",
			Stage:   "convert",
			Snippet: snippet,
			Hint:    hint,
		},
		Cause: cause,
	}
}
