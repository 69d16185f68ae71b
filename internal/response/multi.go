package response

import "errors"

// ErrFrozen is returned when a step is added to a MultiResponse that has
// already been handed back to the caller.
var ErrFrozen = errors.New("response: multi response is frozen")

// Step produces the Response of one physical call.
type Step func() *Response

// Static wraps an already computed Response as a Step.
func Static(r *Response) Step {
	return func() *Response { return r }
}

// PrimarySelection decides which response represents the logical outcome
// when no step failed.
type PrimarySelection int

const (
	// PrimaryLast reports the last processed response. This is the default.
	PrimaryLast PrimarySelection = iota
	// PrimaryFirst reports the first processed response, e.g. the
	// authorization of an authorize-then-void verify.
	PrimaryFirst
)

// MultiOption configures a MultiResponse.
type MultiOption func(*MultiResponse)

// WithPrimary sets the primary selection rule.
func WithPrimary(sel PrimarySelection) MultiOption {
	return func(m *MultiResponse) { m.selection = sel }
}

// WithContinueOnFailure keeps running steps after a failure. The first
// failure is still the reported outcome.
func WithContinueOnFailure() MultiOption {
	return func(m *MultiResponse) { m.continueOnFailure = true }
}

// MultiResponse sequences the Responses of several physical calls that make
// up one logical gateway operation.
type MultiResponse struct {
	responses         []*Response
	selection         PrimarySelection
	continueOnFailure bool
	marked            int
	failed            int
	frozen            bool
}

// NewMulti returns an empty chain.
func NewMulti(opts ...MultiOption) *MultiResponse {
	m := &MultiResponse{marked: -1, failed: -1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RespondWith runs steps in order and returns the frozen chain.
func RespondWith(steps []Step, opts ...MultiOption) *MultiResponse {
	m := NewMulti(opts...)
	for _, step := range steps {
		if _, err := m.Process(step); err != nil {
			break
		}
	}
	return m.Freeze()
}

// Stopped reports whether a failure has short-circuited the chain.
func (m *MultiResponse) Stopped() bool {
	return m.failed >= 0 && !m.continueOnFailure
}

// Process runs step and records its Response. A skipped step (chain already
// short-circuited) returns nil. A failed Response becomes the reported outcome.
func (m *MultiResponse) Process(step Step) (*Response, error) {
	return m.process(step, false, false)
}

// ProcessPrimary is Process but marks the recorded Response as the primary one.
func (m *MultiResponse) ProcessPrimary(step Step) (*Response, error) {
	return m.process(step, false, true)
}

// ProcessIgnoringResult records the Response without letting a failure
// short-circuit the chain or become the outcome. Used for cleanup calls.
func (m *MultiResponse) ProcessIgnoringResult(step Step) (*Response, error) {
	return m.process(step, true, false)
}

func (m *MultiResponse) process(step Step, ignore, primary bool) (*Response, error) {
	if m.frozen {
		return nil, ErrFrozen
	}
	if m.Stopped() {
		return nil, nil
	}
	r := step()
	if r == nil {
		r = Failure("gateway step returned no response", nil)
	}
	m.responses = append(m.responses, r)
	idx := len(m.responses) - 1
	if primary {
		m.marked = idx
	}
	if !ignore && !r.Success() && m.failed < 0 {
		m.failed = idx
	}
	return r, nil
}

// Freeze stops the chain from accepting further steps and returns it.
func (m *MultiResponse) Freeze() *MultiResponse {
	m.frozen = true
	return m
}

// Responses returns the recorded responses in call order.
func (m *MultiResponse) Responses() []*Response {
	out := make([]*Response, len(m.responses))
	copy(out, m.responses)
	return out
}

// Len is the number of recorded physical calls.
func (m *MultiResponse) Len() int { return len(m.responses) }

// First returns the first recorded response, or nil.
func (m *MultiResponse) First() *Response {
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[0]
}

// Last returns the last recorded response, or nil.
func (m *MultiResponse) Last() *Response {
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

// Primary returns the response that represents the logical outcome.
func (m *MultiResponse) Primary() *Response {
	switch {
	case len(m.responses) == 0:
		return emptyChain
	case m.failed >= 0:
		return m.responses[m.failed]
	case m.marked >= 0:
		return m.responses[m.marked]
	case m.selection == PrimaryFirst:
		return m.responses[0]
	default:
		return m.responses[len(m.responses)-1]
	}
}

var emptyChain = Failure("no gateway calls were made", nil)

func (m *MultiResponse) Success() bool {
	return len(m.responses) > 0 && m.failed < 0 && m.Primary().Success()
}

func (m *MultiResponse) Message() string        { return m.Primary().Message() }
func (m *MultiResponse) Authorization() string  { return m.Primary().Authorization() }
func (m *MultiResponse) Params() map[string]any { return m.Primary().Params() }
func (m *MultiResponse) Param(key string) any   { return m.Primary().Param(key) }
func (m *MultiResponse) ErrorCode() string      { return m.Primary().ErrorCode() }
func (m *MultiResponse) Test() bool             { return m.Primary().Test() }

var (
	_ Result = (*Response)(nil)
	_ Result = (*MultiResponse)(nil)
)
