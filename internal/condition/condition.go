// Package condition evaluates display conditions against the current clock
// context.
//
// Evaluation is pure: the result depends only on the passed context and the
// registered providers. Malformed conditions fail open (evaluate to true)
// and are logged once per operator key; showing content beats dropping
// content on a parse error.
package condition

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"inkframe/internal/logging"
)

// Condition is a parsed JSON condition object. Multiple operator keys in
// one object are an implicit AND.
type Condition map[string]any

// Context is the evaluation input.
type Context struct {
	Now  time.Time
	Day  int // Monday = 0
	Hour int
}

// TimePeriod names the bucket an hour falls into.
func TimePeriod(hour int) string {
	switch {
	case hour >= 5 && hour < 7:
		return "early_morning"
	case hour >= 7 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	case hour >= 21:
		return "night"
	default:
		return "late_night"
	}
}

// Provider exposes external state (e.g. weather, presence) to conditions.
type Provider interface {
	State() map[string]any
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() map[string]any

func (f ProviderFunc) State() map[string]any { return f() }

// Evaluator evaluates conditions with a fixed set of providers.
type Evaluator struct {
	logger    *slog.Logger
	providers map[string]Provider

	mu     sync.Mutex
	warned map[string]bool
}

// NewEvaluator creates an Evaluator with no providers.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger:    logging.Default(logger).With("component", "condition"),
		providers: make(map[string]Provider),
		warned:    make(map[string]bool),
	}
}

// RegisterProvider makes external state available under the given name.
// Register at startup, before evaluation begins.
func (e *Evaluator) RegisterProvider(name string, p Provider) {
	e.providers[name] = p
}

// failOpen logs a malformed operator once per key and evaluates it true.
func (e *Evaluator) failOpen(key, why string) bool {
	e.mu.Lock()
	seen := e.warned[key]
	e.warned[key] = true
	e.mu.Unlock()
	if !seen {
		e.logger.Warn("malformed condition, failing open", "operator", key, "reason", why)
	}
	return true
}

// Evaluate applies a condition to the context. A nil or empty condition is
// true: no condition means always applicable.
func (e *Evaluator) Evaluate(cond Condition, ctx Context) bool {
	for key, body := range cond {
		if !e.evalOperator(key, body, ctx) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evalOperator(key string, body any, ctx Context) bool {
	switch key {
	case "time_of_day":
		return e.evalTimeOfDay(body, ctx)
	case "day_of_week":
		return e.evalDayOfWeek(body, ctx)
	case "date_range":
		return e.evalDateRange(body, ctx)
	case "time_range":
		return e.evalTimeRange(body, ctx)
	case "all_of":
		return e.evalList(key, body, ctx, true)
	case "any_of":
		return e.evalList(key, body, ctx, false)
	case "not":
		sub, ok := body.(map[string]any)
		if !ok {
			return e.failOpen(key, "body is not an object")
		}
		return !e.Evaluate(Condition(sub), ctx)
	default:
		return e.evalProvider(key, body)
	}
}

func (e *Evaluator) evalTimeOfDay(body any, ctx Context) bool {
	obj, ok := body.(map[string]any)
	if !ok {
		return e.failOpen("time_of_day", "body is not an object")
	}
	periods, ok := toStrings(obj["periods"])
	if !ok || len(periods) == 0 {
		return e.failOpen("time_of_day", "missing periods list")
	}
	current := TimePeriod(ctx.Hour)
	for _, p := range periods {
		if p == current {
			return true
		}
	}
	return false
}

func (e *Evaluator) evalDayOfWeek(body any, ctx Context) bool {
	obj, ok := body.(map[string]any)
	if !ok {
		return e.failOpen("day_of_week", "body is not an object")
	}
	days, ok := toInts(obj["days"])
	if !ok || len(days) == 0 {
		return e.failOpen("day_of_week", "missing days list")
	}
	for _, d := range days {
		if d == ctx.Day {
			return true
		}
	}
	return false
}

func (e *Evaluator) evalDateRange(body any, ctx Context) bool {
	obj, ok := body.(map[string]any)
	if !ok {
		return e.failOpen("date_range", "body is not an object")
	}
	today := ctx.Now.Format("2006-01-02")
	if s, ok := obj["start_date"].(string); ok && s != "" {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return e.failOpen("date_range", "bad start_date")
		}
		if today < s {
			return false
		}
	}
	if s, ok := obj["end_date"].(string); ok && s != "" {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return e.failOpen("date_range", "bad end_date")
		}
		if today > s {
			return false
		}
	}
	return true
}

func (e *Evaluator) evalTimeRange(body any, ctx Context) bool {
	obj, ok := body.(map[string]any)
	if !ok {
		return e.failOpen("time_range", "body is not an object")
	}
	start, ok1 := obj["start_time"].(string)
	end, ok2 := obj["end_time"].(string)
	if !ok1 || !ok2 {
		return e.failOpen("time_range", "missing start_time or end_time")
	}
	startMin, err1 := parseHHMM(start)
	endMin, err2 := parseHHMM(end)
	if err1 != nil || err2 != nil {
		return e.failOpen("time_range", "unparseable HH:MM")
	}
	nowMin := ctx.Now.Hour()*60 + ctx.Now.Minute()
	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// Wrapping range, e.g. 22:00–06:00.
	return nowMin >= startMin || nowMin < endMin
}

func (e *Evaluator) evalList(key string, body any, ctx Context, all bool) bool {
	items, ok := body.([]any)
	if !ok {
		return e.failOpen(key, "body is not a list")
	}
	for _, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return e.failOpen(key, "list item is not an object")
		}
		got := e.Evaluate(Condition(sub), ctx)
		if all && !got {
			return false
		}
		if !all && got {
			return true
		}
	}
	return all
}

// evalProvider handles `<provider_name>: {equals|contains|in|key=value}`.
// A missing provider fails open.
func (e *Evaluator) evalProvider(name string, body any) bool {
	p, ok := e.providers[name]
	if !ok {
		return e.failOpen(name, "no such provider")
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return e.failOpen(name, "body is not an object")
	}
	state := p.State()

	for op, arg := range obj {
		switch op {
		case "equals":
			if !e.matchFields(name, arg, state, matchEquals) {
				return false
			}
		case "contains":
			if !e.matchFields(name, arg, state, matchContains) {
				return false
			}
		case "in":
			if !e.matchFields(name, arg, state, matchIn) {
				return false
			}
		default:
			// Bare key=value shorthand for equals.
			if !matchEquals(state[op], arg) {
				return false
			}
		}
	}
	return true
}

func (e *Evaluator) matchFields(name string, arg any, state map[string]any, match func(got, want any) bool) bool {
	fields, ok := arg.(map[string]any)
	if !ok {
		return e.failOpen(name, "operator argument is not an object")
	}
	for field, want := range fields {
		if !match(state[field], want) {
			return false
		}
	}
	return true
}

func matchEquals(got, want any) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func matchContains(got, want any) bool {
	switch g := got.(type) {
	case string:
		return strings.Contains(g, fmt.Sprint(want))
	case []any:
		for _, item := range g {
			if matchEquals(item, want) {
				return true
			}
		}
	}
	return false
}

func matchIn(got, want any) bool {
	list, ok := want.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if matchEquals(got, item) {
			return true
		}
	}
	return false
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %s", s)
	}
	return h*60 + m, nil
}

func toStrings(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func toInts(v any) ([]int, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		// JSON numbers decode as float64.
		f, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out = append(out, int(f))
	}
	return out, true
}
