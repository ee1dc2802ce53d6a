package macaroon

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/macaroonkit/macaroon/internal/merr"
)

// Verifier checks a first-party caveat's predicate bytes and decides
// whether the caveat is satisfied.
type Verifier interface {
	VerifyCaveat(predicate []byte) error
}

// acceptAllVerifier always succeeds. Useful for signature-only checks.
type acceptAllVerifier struct{}

// AcceptAll returns a Verifier that accepts every caveat.
func AcceptAll() Verifier { return acceptAllVerifier{} }

func (acceptAllVerifier) VerifyCaveat([]byte) error { return nil }

// rejectAllVerifier always fails. Useful for exercising failure paths.
type rejectAllVerifier struct{}

// RejectAll returns a Verifier that rejects every caveat.
func RejectAll() Verifier { return rejectAllVerifier{} }

func (rejectAllVerifier) VerifyCaveat(predicate []byte) error {
	return CaveatViolation("rejected by RejectAll verifier")
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(predicate []byte) error

func (f VerifierFunc) VerifyCaveat(predicate []byte) error { return f(predicate) }

// Fn wraps a user-supplied callable as a Verifier.
func Fn(f func(predicate []byte) error) Verifier {
	return VerifierFunc(f)
}

// Composite holds an ordered list of sub-verifiers. A caveat passes iff
// any sub-verifier accepts it: an OR combinator, not AND, because
// sub-verifiers are expected to address disjoint caveat keys. An empty
// Composite is permissive -- it accepts everything, the same as
// AcceptAll.
type Composite struct {
	Verifiers []Verifier
}

// NewComposite builds a Composite from the given sub-verifiers.
func NewComposite(verifiers ...Verifier) *Composite {
	return &Composite{Verifiers: verifiers}
}

func (c *Composite) VerifyCaveat(predicate []byte) error {
	if len(c.Verifiers) == 0 {
		return nil
	}

	var errs error
	for _, v := range c.Verifiers {
		if err := v.VerifyCaveat(predicate); err == nil {
			return nil
		} else {
			errs = merr.Append(errs, err)
		}
	}
	if errs == nil {
		return CaveatViolation("no sub-verifier accepted caveat")
	}
	return CaveatViolation(errs.Error())
}

// Context holds a key -> value string mapping that first-party caveats
// (parsed as predicates) are evaluated against.
type Context struct {
	values map[string]string
}

// EmptyContext returns a Context with no bindings.
func EmptyContext() *Context {
	return &Context{values: map[string]string{}}
}

// NewContext is an alias for EmptyContext, for callers building one up
// immediately with With.
func NewContext() *Context {
	return EmptyContext()
}

// With returns a copy of c with key bound to value.
func (c *Context) With(key, value string) *Context {
	next := &Context{values: make(map[string]string, len(c.values)+1)}
	for k, v := range c.values {
		next.values[k] = v
	}
	next.values[key] = value
	return next
}

// WithTime returns a copy of c with "time" bound to t, expressed as a
// decimal Unix-seconds string.
func (c *Context) WithTime(t time.Time) *Context {
	return c.With("time", strconv.FormatInt(t.Unix(), 10))
}

// WithCurrentTime is WithTime(time.Now()).
func (c *Context) WithCurrentTime() *Context {
	return c.WithTime(time.Now())
}

// Len reports how many keys are bound in c.
func (c *Context) Len() int {
	return len(c.values)
}

// VerifyCaveat parses predicate as UTF-8 text, then as a Predicate, then
// evaluates it against c's bindings. Non-UTF-8 bytes or an unparseable
// predicate surface as InvalidFormat; a parseable-but-unsatisfied
// predicate surfaces as CaveatViolation.
func (c *Context) VerifyCaveat(predicate []byte) error {
	if !utf8.Valid(predicate) {
		return InvalidFormat("predicate is not valid UTF-8")
	}

	p, err := ParsePredicate(string(predicate))
	if err != nil {
		return err
	}

	if !p.Evaluate(c.values) {
		return CaveatViolation("predicate not satisfied: " + p.String())
	}
	return nil
}
