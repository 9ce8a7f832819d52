package verifierd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrPullRequestNotFound reports that the upstream API has no such pull
// request. It surfaces as a script-level error in the oracle response.
var ErrPullRequestNotFound = errors.New("verifierd: pull request not found")

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PullRequest holds the fields the verification decision needs.
type PullRequest struct {
	Merged      bool
	Body        string
	AuthorLogin string
}

// GitHubClient queries a GitHub-compatible GraphQL API for pull request
// state.
type GitHubClient struct {
	client   HTTPDoer
	endpoint string
}

// NewGitHubClient builds a client for the endpoint. A nil doer falls back
// to http.DefaultClient.
func NewGitHubClient(client HTTPDoer, endpoint string) *GitHubClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHubClient{client: client, endpoint: strings.TrimSpace(endpoint)}
}

const pullRequestQuery = `query($owner:String!,$name:String!,$number:Int!){
  repository(owner:$owner,name:$name){
    pullRequest(number:$number){ merged body author{ login } }
  }
}`

// FetchPullRequest resolves the pull request's merged flag, body text and
// author login. The credential is sent as a bearer token when non-empty.
func (c *GitHubClient) FetchPullRequest(ctx context.Context, credential, owner, repo string, number int) (*PullRequest, error) {
	query := map[string]interface{}{
		"query": pullRequestQuery,
		"variables": map[string]interface{}{
			"owner":  owner,
			"name":   repo,
			"number": number,
		},
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("verifierd: encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifierd: upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("verifierd: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded struct {
		Data struct {
			Repository *struct {
				PullRequest *struct {
					Merged bool   `json:"merged"`
					Body   string `json:"body"`
					Author *struct {
						Login string `json:"login"`
					} `json:"author"`
				} `json:"pullRequest"`
			} `json:"repository"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("verifierd: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("verifierd: upstream error: %s", decoded.Errors[0].Message)
	}
	repository := decoded.Data.Repository
	if repository == nil || repository.PullRequest == nil {
		return nil, ErrPullRequestNotFound
	}
	pr := &PullRequest{
		Merged: repository.PullRequest.Merged,
		Body:   repository.PullRequest.Body,
	}
	if repository.PullRequest.Author != nil {
		pr.AuthorLogin = repository.PullRequest.Author.Login
	}
	return pr, nil
}
