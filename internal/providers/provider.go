// Package providers defines the contract shared by the image-generation
// backends and the decorators (retry, circuit breaker) applied around them.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"adspack/internal/format"
	"adspack/internal/imagedata"
)

// Request is one reframing call: the source image, the instruction, the
// format being produced and the model to use.
type Request struct {
	Source imagedata.Image
	Prompt string
	Target format.Spec
	Model  string
}

// Generator produces one image per call. Implementations must not mutate
// req.Source.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (imagedata.Image, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (imagedata.Image, error)
}

func (f GeneratorFunc) Name() string { return f.ID }

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (imagedata.Image, error) {
	return f.Fn(ctx, req)
}

// Kind classifies a provider failure.
type Kind int

const (
	// KindTerminal failures are not retried.
	KindTerminal Kind = iota
	// KindTransient covers overload and rate limiting.
	KindTransient
	// KindMalformed is a success response without an image.
	KindMalformed
	// KindUnavailable is a transport failure or an open circuit.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindUnavailable:
		return "unavailable"
	default:
		return "terminal"
	}
}

// Error is the tagged failure value returned by generators.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Code     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Status > 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Malformed reports a successful response without an embedded image.
func Malformed(provider string, err error) *Error {
	if err == nil {
		err = errors.New("response contained no image")
	}
	return &Error{Provider: provider, Kind: KindMalformed, Status: http.StatusOK, Err: err}
}

// Unavailable wraps a transport failure.
func Unavailable(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindUnavailable, Err: err}
}

var transientCodes = map[string]struct{}{
	"RESOURCE_EXHAUSTED":  {},
	"UNAVAILABLE":         {},
	"rate_limit_exceeded": {},
	"server_overloaded":   {},
	"overloaded_error":    {},
}

// FromStatus classifies a non-2xx response. 429, 503 and 529 and the
// overload/rate-limit codes are transient; everything else is terminal.
func FromStatus(provider string, status int, code, message string) *Error {
	kind := KindTerminal
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
		kind = KindTransient
	}
	if _, ok := transientCodes[code]; ok {
		kind = KindTransient
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Provider: provider, Kind: kind, Status: status, Code: code, Err: errors.New(message)}
}

// KindOf returns the failure kind of err. Unclassified errors are terminal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTerminal
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// Reason renders err as a short caller-facing explanation.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "provider timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return "generation failed"
	}
	switch pe.Kind {
	case KindTransient:
		if pe.Status == http.StatusTooManyRequests || pe.Code == "RESOURCE_EXHAUSTED" || pe.Code == "rate_limit_exceeded" {
			return "provider rate limited"
		}
		return "provider overloaded"
	case KindMalformed:
		return "provider returned no image"
	case KindUnavailable:
		return "provider unavailable"
	}
	if pe.Status > 0 {
		return fmt.Sprintf("provider rejected the request (status %d)", pe.Status)
	}
	return "generation failed"
}

// DefaultMaxImageBytes caps downloaded provider images when no limit is set.
const DefaultMaxImageBytes int64 = 32 << 20

// ErrImageTooLarge is returned by ReadImage when the body exceeds the cap.
var ErrImageTooLarge = errors.New("provider image exceeds size limit")

// ReadImage reads an image body of at most limit bytes. A non-positive limit
// means DefaultMaxImageBytes.
func ReadImage(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrImageTooLarge, limit)
	}
	return data, nil
}
