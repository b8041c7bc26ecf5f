// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/item"
)

// FeedRunnerName is the extractor name datasets use to select this runner.
const FeedRunnerName = "json_feed"

// feedConfig is the dataset config shape the feed runner understands.
type feedConfig struct {
	FeedURL   string   `json:"feed_url"`
	PageParam string   `json:"page_param"`
	MaxPages  int      `json:"max_pages"`
	Tags      []string `json:"tags"`
}

// feedEntry is one record of a paged JSON feed.
type feedEntry struct {
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	CanonicalURL string   `json:"canonical_url"`
	Summary      string   `json:"summary"`
	ContentText  string   `json:"content_text"`
	Author       string   `json:"author"`
	ImageURL     string   `json:"image_url"`
	PublishedAt  string   `json:"published_at"`
	Tags         []string `json:"tags"`
}

// FeedRunner is the reference extractor: it walks a paged JSON feed and
// normalizes entries into article records. It exists so the platform has
// one end-to-end exercisable extractor; real extractors register alongside
// it under their own names.
type FeedRunner struct {
	client *http.Client
}

// NewFeedRunner creates a feed runner with a bounded-timeout client.
func NewFeedRunner(timeout time.Duration) *FeedRunner {
	return &FeedRunner{client: &http.Client{Timeout: timeout}}
}

// Run walks the feed page by page until an empty page, the configured page
// cap, cancellation, or (in quick-check mode) the end of the first page.
func (f *FeedRunner) Run(ctx context.Context, d *dataset.Dataset, opts Options, emit func(item.RawRecord) error) (Stats, error) {
	var cfg feedConfig
	if err := json.Unmarshal(d.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid feed config: %w", err)
	}
	if cfg.FeedURL == "" {
		return nil, fmt.Errorf("feed config is missing feed_url")
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}

	maxPages := cfg.MaxPages
	if opts.QuickCheck {
		maxPages = 1
	}

	var emitted, pages int
	for page := 1; page <= maxPages; page++ {
		if opts.Canceled != nil && opts.Canceled(ctx) {
			break
		}

		entries, err := f.fetchPage(ctx, cfg, page)
		if err != nil {
			return Stats{"items_scraped": emitted, "pages_crawled": pages}, err
		}
		pages++
		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			rec, err := f.normalize(d, cfg, e)
			if err != nil {
				// Entries without a URL cannot be deduplicated; skip them.
				continue
			}
			if err := emit(rec); err != nil {
				return Stats{"items_scraped": emitted, "pages_crawled": pages}, err
			}
			emitted++
		}

		if opts.Progress != nil {
			opts.Progress(ctx, page*100/maxPages, Stats{
				"items_scraped": emitted,
				"pages_crawled": pages,
			})
		}
	}

	return Stats{"items_scraped": emitted, "pages_crawled": pages}, nil
}

func (f *FeedRunner) fetchPage(ctx context.Context, cfg feedConfig, page int) ([]feedEntry, error) {
	u, err := url.Parse(cfg.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed_url: %w", err)
	}
	q := u.Query()
	q.Set(cfg.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var entries []feedEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("feed page %d is not a JSON array: %w", page, err)
	}
	return entries, nil
}

func (f *FeedRunner) normalize(d *dataset.Dataset, cfg feedConfig, e feedEntry) (item.RawRecord, error) {
	if e.URL == "" {
		return item.RawRecord{}, item.ErrMissingURL
	}

	rec := item.RawRecord{
		EntityType:   d.EntityType,
		URL:          e.URL,
		CanonicalURL: e.CanonicalURL,
		Tags:         append(append([]string{}, d.Tags...), cfg.Tags...),
		Data: map[string]any{
			"title":       e.Title,
			"contentText": e.ContentText,
		},
	}
	if e.Author != "" {
		rec.Data["author"] = e.Author
	}
	if e.Summary != "" {
		rec.Data["summary"] = e.Summary
	}
	if e.ImageURL != "" {
		rec.Data["imageUrl"] = e.ImageURL
	}
	if e.PublishedAt != "" {
		if ts, err := time.Parse(time.RFC3339, e.PublishedAt); err == nil {
			rec.PublishedAt = &ts
		}
	}
	return rec, nil
}
