package papercrawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"golang.org/x/net/html"
)

// IndexCrawlerName is the factory name of the HTML index crawler
const IndexCrawlerName = "index"

const maxIndexBytes = 5 << 20

// IndexCrawler reads an HTML page that links to past-paper PDFs, such as
// a directory listing or a syllabus resources page.
type IndexCrawler struct {
	BaseCrawler
}

// NewIndexCrawler creates a crawler for the given index page
func NewIndexCrawler(indexURL string) *IndexCrawler {
	return &IndexCrawler{
		BaseCrawler: NewBaseCrawler(CrawlerConfig{
			Name:    IndexCrawlerName,
			BaseURL: indexURL,
		}),
	}
}

// FetchPapers downloads the index page and returns every linked PDF whose
// filename follows the past-paper convention.
func (c *IndexCrawler) FetchPapers(ctx context.Context) ([]RemotePaper, error) {
	if c.Config.BaseURL == "" {
		return nil, fmt.Errorf("index crawler has no URL configured")
	}

	body, err := c.get(ctx, c.Config.BaseURL, maxIndexBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index page: %w", err)
	}

	papers, err := ParseIndex(body, c.Config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}
	return papers, nil
}

// ParseIndex walks the anchors of an HTML document. Relative links are
// resolved against pageURL; duplicate filenames keep the first link.
func ParseIndex(content []byte, pageURL string) ([]RemotePaper, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var papers []RemotePaper
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if p, ok := paperLink(n, base); ok && !seen[p.Filename] {
				seen[p.Filename] = true
				papers = append(papers, p)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return papers, nil
}

func paperLink(n *html.Node, base *url.URL) (RemotePaper, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if href == "" {
		return RemotePaper{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return RemotePaper{}, false
	}
	abs := base.ResolveReference(ref)

	name := path.Base(abs.Path)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return RemotePaper{}, false
	}

	parsed, err := paperindex.ParseFilename(name)
	if err != nil {
		return RemotePaper{}, false
	}

	return RemotePaper{
		Filename:    name,
		URL:         abs.String(),
		SessionCode: parsed.SessionCode,
		DocType:     parsed.DocType,
	}, true
}
