// Package notify delivers best-effort push messages to device tokens.
//
// Delivery never blocks a gate transition and never fails one: the Dispatcher
// hands messages to a worker pool and only logs what could not be delivered.
package notify

import (
	"context"
	"strings"
)

// Message is one push notification addressed to a set of device tokens.
type Message struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// Delivery is the outcome for a single token.
type Delivery struct {
	Token string
	Err   error
}

// Result captures per-token outcomes of one dispatch.
type Result struct {
	Deliveries []Delivery
}

func (r Result) SuccessCount() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

func (r Result) FailureCount() int {
	return len(r.Deliveries) - r.SuccessCount()
}

// Failed returns the deliveries that did not succeed.
func (r Result) Failed() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Gateway is the push transport. A returned error means the whole call
// failed; partial failure is reported through Result only.
type Gateway interface {
	Dispatch(ctx context.Context, msg Message) (Result, error)
}

// resultOf gives every token the same outcome.
func resultOf(tokens []string, err error) Result {
	res := Result{Deliveries: make([]Delivery, 0, len(tokens))}
	for _, t := range tokens {
		res.Deliveries = append(res.Deliveries, Delivery{Token: t, Err: err})
	}
	return res
}

// NormalizeTokens trims tokens and drops blanks and duplicates, keeping the
// first occurrence order.
func NormalizeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
