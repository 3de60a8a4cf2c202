package token

import "strings"

// Operation names a class of API access the broker can be asked to serve.
type Operation string

const (
	OpBasic        Operation = "basic"
	OpPublicRepos  Operation = "public_repos"
	OpPrivateRepos Operation = "private_repos"
	OpUserInfo     Operation = "user_info"
	OpOrgAccess    Operation = "org_access"
	OpCodeScanning Operation = "code_scanning"
	OpFullAccess   Operation = "full_access"
)

// operationScopes is the closed scope-to-operation mapping.
var operationScopes = map[Operation][]string{
	OpBasic:        {},
	OpPublicRepos:  {"public_repo"},
	OpPrivateRepos: {"repo"},
	OpUserInfo:     {"user:email"},
	OpOrgAccess:    {"read:org"},
	OpCodeScanning: {"security_events"},
	OpFullAccess:   {"repo", "user:email", "read:org"},
}

// ScopesFor returns the OAuth scopes an operation requires.
func ScopesFor(op Operation) []string {
	return operationScopes[op]
}

// HasScopes reports whether the granted scope list (comma-separated, as
// stored) covers every required scope. The broad "repo" scope implies
// "public_repo".
func HasScopes(granted string, required []string) bool {
	have := map[string]bool{}
	for _, s := range strings.Split(granted, ",") {
		have[strings.TrimSpace(s)] = true
	}
	for _, want := range required {
		if have[want] {
			continue
		}
		if want == "public_repo" && have["repo"] {
			continue
		}
		return false
	}
	return true
}
