// Package response defines the uniform outcome of a gateway call.
// A Response wraps a single physical network call; a MultiResponse sequences
// several of them into one logical operation (authorize then capture, token
// fetch then charge).
package response

// Result is implemented by both Response and MultiResponse so callers can
// branch on Success() without caring how many calls were made.
type Result interface {
	Success() bool
	Message() string
	Authorization() string
	Params() map[string]any
	Param(key string) any
	ErrorCode() string
	Test() bool
}

// Option configures optional Response fields at construction.
type Option func(*Response)

// WithAuthorization sets the opaque transaction reference.
func WithAuthorization(authorization string) Option {
	return func(r *Response) { r.authorization = authorization }
}

// WithTest marks the response as coming from a sandbox endpoint.
func WithTest(test bool) Option {
	return func(r *Response) { r.test = test }
}

// WithErrorCode sets the normalized error classification, e.g. "card_declined".
func WithErrorCode(code string) Option {
	return func(r *Response) { r.errorCode = code }
}

// Response is the immutable outcome of one gateway call.
type Response struct {
	success       bool
	message       string
	authorization string
	params        map[string]any
	errorCode     string
	test          bool
}

// New builds a Response. Construction never fails; params are copied so later
// changes to the caller's map are not observed.
func New(success bool, message string, params map[string]any, opts ...Option) *Response {
	r := &Response{
		success: success,
		message: message,
		params:  copyParams(params),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Failure is shorthand for a failed Response carrying only a message.
func Failure(message string, params map[string]any, opts ...Option) *Response {
	return New(false, message, params, opts...)
}

func (r *Response) Success() bool         { return r.success }
func (r *Response) Message() string       { return r.message }
func (r *Response) Authorization() string { return r.authorization }
func (r *Response) ErrorCode() string     { return r.errorCode }
func (r *Response) Test() bool            { return r.test }

// Params returns a copy of the raw parsed response fields.
func (r *Response) Params() map[string]any {
	return copyParams(r.params)
}

// Param returns a copy of a single raw field, or nil when absent.
func (r *Response) Param(key string) any {
	return copyValue(r.params[key])
}

// copyParams clones nested maps and slices so a Response never shares
// mutable state with the parser that produced it.
func copyParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyParams(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyValue(e)
		}
		return s
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, e := range t {
			m[k] = e
		}
		return m
	default:
		return v
	}
}
