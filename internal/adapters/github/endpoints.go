package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RepoByID fetches a repository by numeric id with optional etag
func (c *Client) RepoByID(ctx context.Context, id int64, etag string) (Repo, string, bool, error) {
	return c.repoCommon(ctx, fmt.Sprintf("/repositories/%d", id), etag)
}

// RepoByFullName fetches a repository by owner and name with optional etag
func (c *Client) RepoByFullName(ctx context.Context, owner, name, etag string) (Repo, string, bool, error) {
	return c.repoCommon(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), etag)
}

func (c *Client) repoCommon(ctx context.Context, path, etag string) (Repo, string, bool, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, etag)
	if err != nil {
		return Repo{}, "", false, err
	}
	defer c.closeBody(resp, path)

	if resp.StatusCode == http.StatusNotModified {
		return Repo{}, resp.Header.Get("ETag"), true, nil
	}
	var out Repo
	if err := decode(resp.Body, &out); err != nil {
		return Repo{}, "", false, err
	}
	return out, resp.Header.Get("ETag"), false, nil
}

// RateLimit reads /rate_limit for the next pool token
// the endpoint does not count against quota so it is not paced
func (c *Client) RateLimit(ctx context.Context) (RateLimits, error) {
	return c.rateLimit(ctx, "")
}

// PoolRateLimit reads /rate_limit once per token and aggregates the core bucket:
// remaining and limit are summed, reset is the earliest
func (c *Client) PoolRateLimit(ctx context.Context) (RateSample, error) {
	if len(c.tokens) == 0 {
		rl, err := c.rateLimit(ctx, "")
		if err != nil {
			return RateSample{}, err
		}
		return rl.Sample(), nil
	}
	var agg RateSample
	for _, tok := range c.tokens {
		rl, err := c.rateLimit(ctx, tok)
		if err != nil {
			return RateSample{}, err
		}
		s := rl.Sample()
		agg.Remaining += s.Remaining
		agg.Limit += s.Limit
		if !s.Reset.IsZero() && (agg.Reset.IsZero() || s.Reset.Before(agg.Reset)) {
			agg.Reset = s.Reset
		}
	}
	return agg, nil
}

func (c *Client) rateLimit(ctx context.Context, token string) (RateLimits, error) {
	const path = "/rate_limit"
	resp, err := c.do(ctx, http.MethodGet, path, "", token)
	if err != nil {
		return RateLimits{}, err
	}
	defer c.closeBody(resp, path)

	var out RateLimits
	if err := decode(resp.Body, &out); err != nil {
		return RateLimits{}, err
	}
	return out, nil
}

func (c *Client) closeBody(resp *http.Response, path string) {
	if cerr := resp.Body.Close(); cerr != nil {
		c.log.Error().Err(cerr).Str("path", path).Msg("github close body failed")
	}
}

func decode(r io.Reader, out any) error {
	b, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
