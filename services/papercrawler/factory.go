package papercrawler

import (
	"fmt"
	"sort"
	"sync"
)

// Factory holds the configured crawlers by name
type Factory struct {
	crawlers map[string]Crawler
	mu       sync.RWMutex
}

// NewFactory creates a factory with the given crawlers registered
func NewFactory(crawlers ...Crawler) *Factory {
	f := &Factory{crawlers: make(map[string]Crawler)}
	for _, c := range crawlers {
		f.Register(c)
	}
	return f
}

// Register adds or replaces a crawler
func (f *Factory) Register(c Crawler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.crawlers[c.Name()] = c
}

// Get retrieves a crawler by name
func (f *Factory) Get(name string) (Crawler, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, ok := f.crawlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCrawlerNotFound, name)
	}
	return c, nil
}

// Names returns the registered crawler names, sorted
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.crawlers))
	for name := range f.crawlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
