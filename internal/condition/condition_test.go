package condition_test

import (
	"encoding/json"
	"testing"
	"time"

	"inkframe/internal/condition"
)

func parse(t *testing.T, src string) condition.Condition {
	t.Helper()
	var c condition.Condition
	if err := json.Unmarshal([]byte(src), &c); err != nil {
		t.Fatalf("bad test condition: %v", err)
	}
	return c
}

func at(t *testing.T, hhmm string) condition.Context {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatal(err)
	}
	// Monday 2025-06-02.
	now := time.Date(2025, 6, 2, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
	return condition.Context{Now: now, Day: 0, Hour: now.Hour()}
}

func TestTimePeriodBuckets(t *testing.T) {
	cases := map[int]string{
		0: "late_night", 4: "late_night",
		5: "early_morning", 6: "early_morning",
		7: "morning", 11: "morning",
		12: "afternoon", 16: "afternoon",
		17: "evening", 20: "evening",
		21: "night", 23: "night",
	}
	for hour, want := range cases {
		if got := condition.TimePeriod(hour); got != want {
			t.Errorf("hour %d: got %q, want %q", hour, got, want)
		}
	}
}

func TestTimeOfDay(t *testing.T) {
	e := condition.NewEvaluator(nil)
	cond := parse(t, `{"time_of_day": {"periods": ["morning", "evening"]}}`)

	if !e.Evaluate(cond, at(t, "09:00")) {
		t.Error("09:00 should match morning")
	}
	if e.Evaluate(cond, at(t, "14:00")) {
		t.Error("14:00 should not match")
	}
}

func TestDayOfWeek(t *testing.T) {
	e := condition.NewEvaluator(nil)
	cond := parse(t, `{"day_of_week": {"days": [0, 4]}}`)

	ctx := at(t, "09:00") // Monday
	if !e.Evaluate(cond, ctx) {
		t.Error("Monday should match day 0")
	}
	ctx.Day = 2
	if e.Evaluate(cond, ctx) {
		t.Error("Wednesday should not match")
	}
}

func TestDateRangeInclusive(t *testing.T) {
	e := condition.NewEvaluator(nil)
	cond := parse(t, `{"date_range": {"start_date": "2025-06-01", "end_date": "2025-06-02"}}`)
	if !e.Evaluate(cond, at(t, "12:00")) { // 2025-06-02
		t.Error("end date should be inclusive")
	}

	open := parse(t, `{"date_range": {"end_date": "2025-05-01"}}`)
	if e.Evaluate(open, at(t, "12:00")) {
		t.Error("past end date should not match")
	}

	openStart := parse(t, `{"date_range": {"start_date": "2025-01-01"}}`)
	if !e.Evaluate(openStart, at(t, "12:00")) {
		t.Error("absent end bound should be open")
	}
}

// A wrapping range 22:00–06:00 is true at midnight and false at 06:00.
func TestTimeRangeWrapsMidnight(t *testing.T) {
	e := condition.NewEvaluator(nil)
	cond := parse(t, `{"time_range": {"start_time": "22:00", "end_time": "06:00"}}`)

	if !e.Evaluate(cond, at(t, "00:00")) {
		t.Error("00:00 should be inside 22:00-06:00")
	}
	if e.Evaluate(cond, at(t, "06:00")) {
		t.Error("06:00 should be outside 22:00-06:00")
	}
	if !e.Evaluate(cond, at(t, "23:30")) {
		t.Error("23:30 should be inside 22:00-06:00")
	}
	if e.Evaluate(cond, at(t, "12:00")) {
		t.Error("12:00 should be outside 22:00-06:00")
	}
}

func TestTimeRangePlain(t *testing.T) {
	e := condition.NewEvaluator(nil)
	cond := parse(t, `{"time_range": {"start_time": "09:00", "end_time": "17:00"}}`)
	if !e.Evaluate(cond, at(t, "09:00")) {
		t.Error("start should be inclusive")
	}
	if e.Evaluate(cond, at(t, "17:00")) {
		t.Error("end should be exclusive")
	}
}

func TestCombinators(t *testing.T) {
	e := condition.NewEvaluator(nil)
	ctx := at(t, "09:00") // Monday morning

	allOf := parse(t, `{"all_of": [
		{"day_of_week": {"days": [0]}},
		{"time_of_day": {"periods": ["morning"]}}
	]}`)
	if !e.Evaluate(allOf, ctx) {
		t.Error("all_of with both true should match")
	}

	anyOf := parse(t, `{"any_of": [
		{"day_of_week": {"days": [5]}},
		{"time_of_day": {"periods": ["morning"]}}
	]}`)
	if !e.Evaluate(anyOf, ctx) {
		t.Error("any_of with one true should match")
	}

	not := parse(t, `{"not": {"day_of_week": {"days": [5, 6]}}}`)
	if !e.Evaluate(not, ctx) {
		t.Error("not(weekend) should match Monday")
	}

	// Sibling keys are an implicit AND.
	both := parse(t, `{"day_of_week": {"days": [0]}, "time_of_day": {"periods": ["night"]}}`)
	if e.Evaluate(both, ctx) {
		t.Error("implicit AND should fail on the night period")
	}
}

func TestProviderOperators(t *testing.T) {
	e := condition.NewEvaluator(nil)
	e.RegisterProvider("weather", condition.ProviderFunc(func() map[string]any {
		return map[string]any{
			"condition": "partly cloudy",
			"temp_c":    float64(21),
			"alerts":    []any{"wind"},
		}
	}))
	ctx := at(t, "09:00")

	if !e.Evaluate(parse(t, `{"weather": {"equals": {"temp_c": 21}}}`), ctx) {
		t.Error("equals should match")
	}
	if !e.Evaluate(parse(t, `{"weather": {"contains": {"condition": "cloudy"}}}`), ctx) {
		t.Error("contains should match substring")
	}
	if !e.Evaluate(parse(t, `{"weather": {"contains": {"alerts": "wind"}}}`), ctx) {
		t.Error("contains should match list membership")
	}
	if !e.Evaluate(parse(t, `{"weather": {"in": {"condition": ["sunny", "partly cloudy"]}}}`), ctx) {
		t.Error("in should match")
	}
	if !e.Evaluate(parse(t, `{"weather": {"condition": "partly cloudy"}}`), ctx) {
		t.Error("bare key=value should match")
	}
	if e.Evaluate(parse(t, `{"weather": {"equals": {"temp_c": 5}}}`), ctx) {
		t.Error("equals should reject a mismatch")
	}
}

func TestFailOpen(t *testing.T) {
	e := condition.NewEvaluator(nil)
	ctx := at(t, "09:00")

	cases := []string{
		`{"time_of_day": {"periods": "morning"}}`, // not a list
		`{"time_of_day": 7}`,
		`{"day_of_week": {"days": ["monday"]}}`,
		`{"time_range": {"start_time": "25:99", "end_time": "06:00"}}`,
		`{"date_range": {"start_date": "junk"}}`,
		`{"presence": {"equals": {"home": true}}}`, // unregistered provider
		`{"all_of": "nope"}`,
	}
	for _, src := range cases {
		if !e.Evaluate(parse(t, src), ctx) {
			t.Errorf("condition %s should fail open", src)
		}
	}
}

// Purity: same condition, same context, same answer across repeats.
func TestEvaluationIsPure(t *testing.T) {
	e := condition.NewEvaluator(nil)
	cond := parse(t, `{"time_of_day": {"periods": ["morning"]}}`)
	ctx := at(t, "09:00")
	for i := 0; i < 10; i++ {
		if !e.Evaluate(cond, ctx) {
			t.Fatalf("iteration %d differed", i)
		}
	}
	if e.Evaluate(cond, at(t, "22:00")) {
		t.Error("result did not track context")
	}
}
