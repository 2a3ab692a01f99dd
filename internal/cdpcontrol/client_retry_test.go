package cdpcontrol

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCodedErrorFormatting(t *testing.T) {
	base := errors.New("socket gone")
	err := newError(CodeEvalFailure, "evaluation failed", base)

	if got := err.Error(); !strings.Contains(got, CodeEvalFailure) || !strings.Contains(got, "socket gone") {
		t.Fatalf("Error() = %q; want code and cause present", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("CodedError must unwrap to its cause")
	}
}

func TestShouldRetryTransientHints(t *testing.T) {
	c := NewClient("http://127.0.0.1:9220", "sportsbook", time.Second)

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"cdp unavailable", newError(CodeCDPUnavailable, "down", nil), true},
		{"tab not found", newError(CodeTabNotFound, "gone", nil), false},
		{"eval broken pipe", newError(CodeEvalFailure, "eval", errors.New("write: broken pipe")), true},
		{"eval app error", newError(CodeEvalFailure, "eval", errors.New("no betslip on page")), false},
		{"eval no cause", newError(CodeEvalFailure, "eval", nil), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.shouldRetry(tc.err); got != tc.want {
				t.Fatalf("shouldRetry(%v) = %v; want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestLabeledInputJSQuotesLabel(t *testing.T) {
	js := jsClickLabeledInput(`Confirm "Bet"`)
	if !strings.Contains(js, `"Confirm \"Bet\""`) {
		t.Fatalf("label not JSON-escaped in generated JS:\n%s", js)
	}
}
