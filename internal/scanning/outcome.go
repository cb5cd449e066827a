package scanning

import (
	"fmt"
	"path/filepath"
)

// Reason classifies why an extraction failed
type Reason int

const (
	MissingCredential Reason = iota + 1
	UnreadableImage
	TransportError
	EmptyResponse
	MalformedJSON
)

func (r Reason) String() string {
	switch r {
	case MissingCredential:
		return "missing_credential"
	case UnreadableImage:
		return "unreadable_image"
	case TransportError:
		return "transport_error"
	case EmptyResponse:
		return "empty_response"
	case MalformedJSON:
		return "malformed_json"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// MarshalText renders the reason as its snake_case name
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a reason name
func (r *Reason) UnmarshalText(text []byte) error {
	for _, candidate := range []Reason{MissingCredential, UnreadableImage, TransportError, EmptyResponse, MalformedJSON} {
		if candidate.String() == string(text) {
			*r = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", text)
}

// Outcome is the result of extracting one file: either *Success or *Failure.
// Consumers switch on the concrete type.
type Outcome interface {
	// File returns the base name of the extracted file
	File() string
	outcome()
}

// Success carries a fully populated record
type Success struct {
	Path   string
	Record InvoiceRecord
}

func (s *Success) File() string { return filepath.Base(s.Path) }
func (*Success) outcome()       {}

// Failure describes a failed extraction. Raw holds the model text for
// MalformedJSON failures.
type Failure struct {
	Path    string
	Reason  Reason
	Message string
	Raw     string
	Err     error
}

// NewFailure builds a failure outcome for path
func NewFailure(path string, reason Reason, message string, err error) *Failure {
	return &Failure{Path: path, Reason: reason, Message: message, Err: err}
}

func (f *Failure) File() string { return filepath.Base(f.Path) }
func (*Failure) outcome()       {}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.File(), f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.File(), f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Detail is the short user-facing message, including the cause when present
func (f *Failure) Detail() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}
