// Package github pulls repository issues and pull requests via the GitHub
// REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/beaconhq/beacon/internal/connectors"
)

type Config struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	BaseURL string `json:"base_url,omitempty"`
}

type Connector struct {
	cfg     Config
	client  *gh.Client
	limiter *rate.Limiter
}

func New(raw json.RawMessage, credential string) (connectors.Connector, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse github config: %w", err)
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github config: owner and repo required")
	}

	var httpClient *http.Client
	if credential != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential}))
	}
	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}

	return &Connector{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(2), 5),
	}, nil
}

func (c *Connector) Type() string { return "github" }

// cursor is (high-water update mark, page within that listing). The Since
// filter plus ascending updated sort makes resumption monotonic: documents
// updated before Since are never re-listed.
type cursor struct {
	Since time.Time `json:"since"`
	Page  int       `json:"page"`
}

func decodeCursor(s string) (cursor, error) {
	if s == "" {
		return cursor{Page: 1}, nil
	}
	var cur cursor
	if err := json.Unmarshal([]byte(s), &cur); err != nil {
		return cursor{}, fmt.Errorf("decode github cursor: %w", err)
	}
	if cur.Page < 1 {
		cur.Page = 1
	}
	return cur, nil
}

func (cur cursor) encode() string {
	b, _ := json.Marshal(cur)
	return string(b)
}

func (c *Connector) Poll(ctx context.Context, rawCursor string) (*connectors.Batch, error) {
	cur, err := decodeCursor(rawCursor)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", connectors.ErrSourceUnavailable, err)
	}

	perms, err := c.repoPermissions(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListByRepoOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "asc",
		ListOptions: gh.ListOptions{
			Page:    cur.Page,
			PerPage: 100,
		},
	}
	if !cur.Since.IsZero() {
		opts.Since = cur.Since
	}

	issues, resp, err := c.client.Issues.ListByRepo(ctx, c.cfg.Owner, c.cfg.Repo, opts)
	if err != nil {
		return nil, classify(err)
	}

	docs := make([]connectors.RawDocument, 0, len(issues))
	latest := cur.Since
	for _, issue := range issues {
		updated := issue.GetUpdatedAt().Time
		if updated.After(latest) {
			latest = updated
		}

		kind := "issue"
		if issue.IsPullRequest() {
			kind = "pull_request"
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.GetName())
		}

		var content strings.Builder
		content.WriteString(issue.GetTitle())
		content.WriteString("\n\n")
		content.WriteString(issue.GetBody())

		tags := map[string]string{"repo": c.cfg.Owner + "/" + c.cfg.Repo, "kind": kind}
		if len(labels) > 0 {
			tags["label"] = labels[0]
		}

		docs = append(docs, connectors.RawDocument{
			ID:        fmt.Sprintf("github:%s/%s:%d", c.cfg.Owner, c.cfg.Repo, issue.GetNumber()),
			Title:     issue.GetTitle(),
			Link:      issue.GetHTMLURL(),
			Content:   content.String(),
			UpdatedAt: updated,
			Metadata: map[string]string{
				"author": issue.GetUser().GetLogin(),
				"state":  issue.GetState(),
				"kind":   kind,
			},
			Tags:        tags,
			Permissions: perms,
		})
	}

	var next cursor
	hasMore := resp.NextPage != 0
	if hasMore {
		next = cursor{Since: cur.Since, Page: resp.NextPage}
	} else {
		// Listing exhausted: restart at the new high-water mark on the next
		// scheduled poll.
		next = cursor{Since: latest, Page: 1}
	}

	return &connectors.Batch{Documents: docs, NextCursor: next.encode(), HasMore: hasMore}, nil
}

// repoPermissions maps repository visibility to an access set: public repos
// are world-readable, private repos admit the collaborator list.
func (c *Connector) repoPermissions(ctx context.Context) (*connectors.PermissionSet, error) {
	repo, _, err := c.client.Repositories.Get(ctx, c.cfg.Owner, c.cfg.Repo)
	if err != nil {
		return nil, classify(err)
	}
	if !repo.GetPrivate() {
		return &connectors.PermissionSet{IsPublic: true, Complete: true}, nil
	}

	var principals []string
	page := 1
	for {
		users, resp, err := c.client.Repositories.ListCollaborators(ctx, c.cfg.Owner, c.cfg.Repo,
			&gh.ListCollaboratorsOptions{ListOptions: gh.ListOptions{Page: page, PerPage: 100}})
		if err != nil {
			// Listing failed part-way: return what the propagator will
			// treat as incomplete rather than an under-scoped set.
			return &connectors.PermissionSet{Complete: false}, nil
		}
		for _, u := range users {
			principals = append(principals, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}
	return &connectors.PermissionSet{Principals: principals, Complete: true}, nil
}

func classify(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("github: %w", &connectors.RateLimitError{
			RetryAfter: time.Until(rateErr.Rate.Reset.Time),
		})
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		retryAfter := time.Minute
		if abuseErr.RetryAfter != nil {
			retryAfter = *abuseErr.RetryAfter
		}
		return fmt.Errorf("github: %w", &connectors.RateLimitError{RetryAfter: retryAfter})
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("github: %v: %w", err, connectors.ErrAuthExpired)
		}
	}
	return fmt.Errorf("github: %v: %w", err, connectors.ErrSourceUnavailable)
}
