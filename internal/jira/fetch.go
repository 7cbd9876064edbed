package jira

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

// keyBatchSize bounds the number of keys per "key in (...)" query.
const keyBatchSize = 50

// FetchIssues retrieves at most maxResults issues matching jql, paging with an
// adaptive batch size.
//
// The returned slice is never nil and holds every record fetched, even when
// the error is non-nil. A nil error with an empty slice means the query
// matched nothing. A non-nil error is a *FetchError describing where paging
// stopped: exhausted retries on a transport error, a remote rejection,
// cancellation, or slices skipped after persistent timeouts.
func (c *Client) FetchIssues(ctx context.Context, jql string, maxResults int) ([]types.IssueRef, error) {
	issues := make([]types.IssueRef, 0)
	if maxResults <= 0 {
		return issues, nil
	}

	c.logger.Debug("fetching issues", "jql", jql, "max_results", maxResults)

	p := newPager(c.policy)
	total := -1
	skipped := 0

	for len(issues) < maxResults {
		// With no successful page yet the total is unknown; stop skipping
		// once the offset passes the window the caller asked for.
		if total >= 0 && p.position >= total {
			break
		}
		if total < 0 && p.position >= maxResults {
			break
		}

		size := p.requestSize(maxResults - len(issues))
		startAt := p.position

		var page *SearchResult
		err := c.retry(ctx, "search", func(ctx context.Context) error {
			r, err := c.SearchPage(ctx, jql, startAt, size)
			if err != nil {
				return err
			}
			page = r
			return nil
		})

		if err != nil {
			if IsTimeout(err) && ctx.Err() == nil {
				action := p.timedOut()
				c.metrics.pageTimedOut(ctx, action)
				switch action {
				case actionShrink:
					c.logger.Info("reducing batch size after timeouts",
						"jql", jql, "start_at", startAt, "batch", p.batchSize)
				case actionSkip:
					skipped++
					c.logger.Warn("skipping slice after persistent timeouts",
						"jql", jql, "start_at", startAt, "skipped", p.floor)
				default:
					c.logger.Warn("page timed out, retrying same offset",
						"jql", jql, "start_at", startAt, "batch", p.batchSize)
				}
				continue
			}

			c.logger.Error("fetch aborted",
				"jql", jql, "start_at", startAt, "fetched", len(issues), "err", err)
			return issues, &FetchError{JQL: jql, StartAt: startAt, Fetched: len(issues), Skipped: skipped, Err: err}
		}

		c.metrics.pageFetched(ctx, len(page.Issues))
		total = page.Total
		if len(page.Issues) == 0 {
			break
		}

		for i := range page.Issues {
			if len(issues) >= maxResults {
				break
			}
			issues = append(issues, Normalize(&page.Issues[i], page.Names))
		}

		if p.advance(len(page.Issues)) {
			c.logger.Info("increasing batch size", "jql", jql, "batch", p.batchSize)
		}

		c.logger.Debug("fetch progress",
			"jql", jql, "fetched", len(issues), "want", min(maxResults, total), "page", len(page.Issues))
	}

	if skipped > 0 {
		return issues, &FetchError{JQL: jql, StartAt: p.position, Fetched: len(issues), Skipped: skipped, Err: ErrSlicesSkipped}
	}

	if len(issues) == 0 {
		c.logger.Debug("no issues fetched", "jql", jql)
	}
	return issues, nil
}

// FetchByKeys fetches the issues named by keys in batches. Invalid and
// duplicate keys are dropped. Results keep the first-seen order and are
// de-duplicated; batch failures are joined into the returned error.
func (c *Client) FetchByKeys(ctx context.Context, keys []string) ([]types.IssueRef, error) {
	valid := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = NormalizeKey(k)
		if !IsValidKey(k) || seen[k] {
			continue
		}
		seen[k] = true
		valid = append(valid, k)
	}

	result := make([]types.IssueRef, 0, len(valid))
	got := make(map[string]bool, len(valid))
	var errs []error

	for start := 0; start < len(valid); start += keyBatchSize {
		end := min(start+keyBatchSize, len(valid))
		batch := valid[start:end]

		issues, err := c.FetchIssues(ctx, KeysIn(batch), len(batch))
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", start/keyBatchSize+1, err))
		}
		for _, issue := range issues {
			if got[issue.Key] {
				continue
			}
			got[issue.Key] = true
			result = append(result, issue)
		}
	}

	if len(result) == 0 && len(valid) > 0 {
		c.logger.Warn("no issues found for requested keys", "requested", len(valid))
	}
	return result, errors.Join(errs...)
}
