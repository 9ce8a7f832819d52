package verifierd

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gitbounty/native/verify"
)

// LinksIssue reports whether the pull request body references the issue
// with a closing keyword: a case-insensitive match of
// (closes|fixes|resolves) followed by #<issueID>.
func LinksIssue(body, issueID string) bool {
	pattern := `(?i)(closes|fixes|resolves)\s+#` + regexp.QuoteMeta(issueID) + `\b`
	matched, err := regexp.MatchString(pattern, body)
	if err != nil {
		return false
	}
	return matched
}

// RunVerification executes the verification script contract: given
// [owner, repo, prNumber, issueId] it queries the source-control API and
// returns the ABI-encoded (merged && linksIssue, authorLogin) pair. Any
// upstream failure, including a missing pull request, is a script-level
// error.
func RunVerification(ctx context.Context, gh *GitHubClient, credential string, args []string) ([]byte, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("verifierd: expected 4 args [owner repo prNumber issueId], got %d", len(args))
	}
	owner := strings.TrimSpace(args[0])
	repo := strings.TrimSpace(args[1])
	issueID := strings.TrimSpace(args[3])
	prNumber, err := strconv.Atoi(strings.TrimSpace(args[2]))
	if err != nil {
		return nil, fmt.Errorf("verifierd: invalid pr number %q", args[2])
	}
	if owner == "" || repo == "" || issueID == "" {
		return nil, fmt.Errorf("verifierd: owner, repo and issueId required")
	}
	pr, err := gh.FetchPullRequest(ctx, credential, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}
	verified := pr.Merged && LinksIssue(pr.Body, issueID)
	return verify.EncodeVerificationResult(verified, pr.AuthorLogin)
}
