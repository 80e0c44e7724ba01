// Package papercrawler discovers past-paper PDFs published on remote index
// pages and downloads them for import.
package papercrawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrCrawlerNotFound = errors.New("crawler not found")

// maxPDFBytes bounds a single download
const maxPDFBytes = 50 << 20

// RemotePaper is a paper discovered by a crawler
type RemotePaper struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	SessionCode string `json:"session_code"`
	DocType     string `json:"doc_type"`
}

// Crawler defines the contract for every paper source
type Crawler interface {
	// Name is the unique identifier used by the factory
	Name() string

	// FetchPapers lists every paper the source currently publishes
	FetchPapers(ctx context.Context) ([]RemotePaper, error)

	// DownloadPDF fetches one paper's bytes
	DownloadPDF(ctx context.Context, url string) ([]byte, error)
}

// CrawlerConfig holds configuration for a crawler instance
type CrawlerConfig struct {
	Name          string
	BaseURL       string
	Timeout       time.Duration
	CustomHeaders map[string]string
}

// BaseCrawler provides the HTTP plumbing shared by crawlers
type BaseCrawler struct {
	Config     CrawlerConfig
	httpClient *http.Client
}

// NewBaseCrawler creates a base crawler with a bounded HTTP client
func NewBaseCrawler(config CrawlerConfig) BaseCrawler {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.CustomHeaders == nil {
		config.CustomHeaders = map[string]string{
			"User-Agent": "pastpapers-explainer/1.0 (+paper import)",
		}
	}
	return BaseCrawler{
		Config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name implements Crawler
func (c *BaseCrawler) Name() string {
	return c.Config.Name
}

func (c *BaseCrawler) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range c.Config.CustomHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, limit)
	}
	return body, nil
}

// DownloadPDF implements Crawler
func (c *BaseCrawler) DownloadPDF(ctx context.Context, url string) ([]byte, error) {
	data, err := c.get(ctx, url, maxPDFBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	return data, nil
}
