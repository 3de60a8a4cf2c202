package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	gogithub "github.com/google/go-github/v68/github"
)

func ghError(status int, message string) error {
	return &gogithub.ErrorResponse{
		Response: &http.Response{StatusCode: status, Request: &http.Request{}},
		Message:  message,
	}
}

func TestClassifyHTTPStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"404", ghError(404, "Not Found"), KindNotFoundOrDisabled},
		{"422", ghError(422, "Unprocessable"), KindNotFoundOrDisabled},
		{"403 feature off", ghError(403, "Code scanning is not enabled for this repository"), KindNotFoundOrDisabled},
		{"403 advanced security", ghError(403, "Advanced Security must be enabled"), KindNotFoundOrDisabled},
		{"403 forbidden", ghError(403, "Resource not accessible by integration"), KindPermissionDenied},
		{"401", ghError(401, "Bad credentials"), KindPermissionDenied},
		{"429", ghError(429, "too many requests"), KindRateLimited},
		{"500", ghError(500, "boom"), KindTransient},
		{"503", ghError(503, "unavailable"), KindTransient},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifyRateLimitTypes(t *testing.T) {
	rate := &gogithub.RateLimitError{
		Response: &http.Response{StatusCode: 403, Request: &http.Request{}},
	}
	if got := Classify(rate); got != KindRateLimited {
		t.Fatalf("RateLimitError = %v, want KindRateLimited", got)
	}
	abuse := &gogithub.AbuseRateLimitError{
		Response: &http.Response{StatusCode: 403, Request: &http.Request{}},
	}
	if got := Classify(abuse); got != KindRateLimited {
		t.Fatalf("AbuseRateLimitError = %v, want KindRateLimited", got)
	}
}

func TestClassifyWrappedErrors(t *testing.T) {
	// Pipelines wrap upstream errors with context; classification must
	// still see through the wrapping.
	wrapped := fmt.Errorf("listing alerts for acme/billing: %w", ghError(404, "Not Found"))
	if got := Classify(wrapped); got != KindNotFoundOrDisabled {
		t.Fatalf("wrapped 404 = %v, want KindNotFoundOrDisabled", got)
	}
}

func TestClassifyNetworkAndDefault(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != KindTransient {
		t.Fatalf("deadline = %v, want KindTransient", got)
	}
	if got := Classify(errors.New("connection reset by peer")); got != KindTransient {
		t.Fatalf("unknown error = %v, want KindTransient", got)
	}
}
