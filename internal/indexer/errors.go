package indexer

import (
	"context"
	"errors"
	"net"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
)

// Kind is the closed error taxonomy the engine reacts to.
type Kind int

const (
	KindNone Kind = iota
	// KindNotFoundOrDisabled: the resource or feature does not exist for
	// this repository. The run completes with a note and is not retried soon.
	KindNotFoundOrDisabled
	// KindPermissionDenied: the credential cannot see the resource. Not
	// retried automatically.
	KindPermissionDenied
	// KindRateLimited: the credential budget is exhausted. Deferred via a
	// _retry task without charging a retry.
	KindRateLimited
	// KindTransient: 5xx, timeouts, connection resets. Charged one retry.
	KindTransient
	// KindInputInvalid: malformed repository name or corrupt state record.
	KindInputInvalid
)

// featureOffIndicators mark a 403 body as "feature disabled" rather than a
// true permission failure.
var featureOffIndicators = []string{
	"code scanning is not enabled",
	"code scanning not enabled",
	"advanced security",
}

// Classify maps an upstream error into the taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return KindRateLimited
	}
	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return KindRateLimited
	}

	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch code := ghErr.Response.StatusCode; {
		case code == 404 || code == 422:
			return KindNotFoundOrDisabled
		case code == 403:
			msg := strings.ToLower(ghErr.Message)
			for _, ind := range featureOffIndicators {
				if strings.Contains(msg, ind) {
					return KindNotFoundOrDisabled
				}
			}
			return KindPermissionDenied
		case code == 401:
			return KindPermissionDenied
		case code == 429:
			return KindRateLimited
		case code >= 500:
			return KindTransient
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindTransient
}
