// Package slack pulls channel messages through the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/beaconhq/beacon/internal/connectors"
)

const defaultBaseURL = "https://slack.com/api"

type Config struct {
	Channels []string `json:"channels"`
	BaseURL  string   `json:"base_url,omitempty"`
	PageSize int      `json:"page_size,omitempty"`
}

type Connector struct {
	cfg     Config
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

func New(raw json.RawMessage, credential string) (connectors.Connector, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse slack config: %w", err)
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("slack config: at least one channel required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Connector{
		cfg:     cfg,
		token:   credential,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 3), // Slack tier-3 methods allow ~1 rps sustained
	}, nil
}

func (c *Connector) Type() string { return "slack" }

// cursor tracks which channel of the configured list we are on and Slack's
// own pagination cursor within it.
type cursor struct {
	ChannelIndex int    `json:"ch"`
	SlackCursor  string `json:"sc"`
}

func decodeCursor(s string) (cursor, error) {
	if s == "" {
		return cursor{}, nil
	}
	var cur cursor
	if err := json.Unmarshal([]byte(s), &cur); err != nil {
		return cursor{}, fmt.Errorf("decode slack cursor: %w", err)
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
	if cur.ChannelIndex >= len(c.cfg.Channels) {
		return &connectors.Batch{NextCursor: rawCursor, HasMore: false}, nil
	}
	channel := c.cfg.Channels[cur.ChannelIndex]

	perms := c.channelPermissions(ctx, channel)

	var hist historyResponse
	params := url.Values{
		"channel": {channel},
		"limit":   {strconv.Itoa(c.cfg.PageSize)},
	}
	if cur.SlackCursor != "" {
		params.Set("cursor", cur.SlackCursor)
	}
	if err := c.call(ctx, "conversations.history", params, &hist); err != nil {
		return nil, err
	}

	docs := make([]connectors.RawDocument, 0, len(hist.Messages))
	for _, m := range hist.Messages {
		if m.Text == "" || m.Subtype == "channel_join" || m.Subtype == "channel_leave" {
			continue
		}
		ts, err := parseSlackTS(m.TS)
		if err != nil {
			continue
		}
		docs = append(docs, connectors.RawDocument{
			ID:          fmt.Sprintf("slack:%s:%s", channel, m.TS),
			Title:       fmt.Sprintf("#%s message", channel),
			Link:        fmt.Sprintf("https://slack.com/archives/%s/p%s", channel, strings.ReplaceAll(m.TS, ".", "")),
			Content:     m.Text,
			UpdatedAt:   ts,
			Metadata:    map[string]string{"channel": channel, "user": m.User},
			Tags:        map[string]string{"channel": channel},
			Permissions: perms,
		})
	}

	next := cursor{ChannelIndex: cur.ChannelIndex, SlackCursor: hist.ResponseMetadata.NextCursor}
	hasMore := hist.HasMore && hist.ResponseMetadata.NextCursor != ""
	if !hasMore {
		// Channel exhausted, move to the next one.
		next = cursor{ChannelIndex: cur.ChannelIndex + 1}
		hasMore = next.ChannelIndex < len(c.cfg.Channels)
	}

	return &connectors.Batch{Documents: docs, NextCursor: next.encode(), HasMore: hasMore}, nil
}

// channelPermissions resolves who can see a channel. Any failure yields an
// incomplete set so indexing fails closed rather than leaking.
func (c *Connector) channelPermissions(ctx context.Context, channel string) *connectors.PermissionSet {
	var info infoResponse
	if err := c.call(ctx, "conversations.info", url.Values{"channel": {channel}}, &info); err != nil {
		return &connectors.PermissionSet{Complete: false}
	}
	if !info.Channel.IsPrivate {
		return &connectors.PermissionSet{IsPublic: true, Complete: true}
	}

	var members []string
	memberCursor := ""
	for {
		params := url.Values{"channel": {channel}, "limit": {"200"}}
		if memberCursor != "" {
			params.Set("cursor", memberCursor)
		}
		var resp membersResponse
		if err := c.call(ctx, "conversations.members", params, &resp); err != nil {
			return &connectors.PermissionSet{Complete: false}
		}
		members = append(members, resp.Members...)
		memberCursor = resp.ResponseMetadata.NextCursor
		if memberCursor == "" {
			break
		}
	}
	return &connectors.PermissionSet{Principals: members, Complete: true}
}

func (c *Connector) call(ctx context.Context, method string, params url.Values, out apiResponse) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", connectors.ErrSourceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", connectors.ErrSourceUnavailable, method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 30 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return fmt.Errorf("slack %s: %w", method, &connectors.RateLimitError{RetryAfter: retryAfter})
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("slack %s: %w", method, connectors.ErrAuthExpired)
	case resp.StatusCode >= 500:
		return fmt.Errorf("slack %s: status %d: %w", method, resp.StatusCode, connectors.ErrSourceUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode slack %s: %w", method, err)
	}
	if !out.ok() {
		switch out.apiError() {
		case "invalid_auth", "token_revoked", "account_inactive":
			return fmt.Errorf("slack %s: %s: %w", method, out.apiError(), connectors.ErrAuthExpired)
		case "ratelimited":
			return fmt.Errorf("slack %s: %w", method, &connectors.RateLimitError{RetryAfter: 30 * time.Second})
		default:
			return fmt.Errorf("slack %s: %s: %w", method, out.apiError(), connectors.ErrSourceUnavailable)
		}
	}
	return nil
}

func parseSlackTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slack ts %q: %w", ts, err)
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}

type apiResponse interface {
	ok() bool
	apiError() string
}

type baseResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (b baseResponse) ok() bool         { return b.OK }
func (b baseResponse) apiError() string { return b.Error }

type historyResponse struct {
	baseResponse
	Messages []struct {
		TS      string `json:"ts"`
		Text    string `json:"text"`
		User    string `json:"user"`
		Subtype string `json:"subtype"`
	} `json:"messages"`
	HasMore          bool `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type infoResponse struct {
	baseResponse
	Channel struct {
		IsPrivate bool `json:"is_private"`
	} `json:"channel"`
}

type membersResponse struct {
	baseResponse
	Members          []string `json:"members"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}
