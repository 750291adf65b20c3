package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	ghAPI "github.com/cli/go-gh/v2/pkg/api"
)

// DownloadJobLog downloads the plain-text log of a job.
// GitHub answers with a 302 redirect to a short-lived URL.
func (c *Client) DownloadJobLog(ctx context.Context, jobID int64) (io.ReadCloser, error) {
	return c.downloadLog(ctx, c.repoPath(fmt.Sprintf("actions/jobs/%d/logs", jobID)))
}

func (c *Client) downloadLog(ctx context.Context, apiPath string) (io.ReadCloser, error) {
	// go-gh's client carries the auth headers; redirects are followed by
	// hand because the target URL must not receive them.
	httpClient, err := ghAPI.DefaultHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	url := fmt.Sprintf("https://api.github.com/%s", apiPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build log request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("log request failed: %w", err)
	}

	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusTemporaryRedirect {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return nil, fmt.Errorf("redirect with no Location header")
		}
		redirectReq, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("create redirect request: %w", err)
		}
		resp, err = http.DefaultClient.Do(redirectReq)
		if err != nil {
			return nil, fmt.Errorf("follow redirect: %w", err)
		}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d downloading log", resp.StatusCode)
	}

	return resp.Body, nil
}
