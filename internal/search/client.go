package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the external search collaborator. A nil error with zero results
// is a valid outcome; transport and decode failures surface as errors and are
// absorbed by the aggregator (fail-soft).
type Client interface {
	Search(ctx context.Context, q Query) ([]Video, error)
}

// HTTPClient queries a JSON search endpoint.
//
// The wire shape matches the upstream video-search API:
//
//	{"contents": [{"type": "video", "video": {"videoId": ..., "title": ..., ...}}]}
type HTTPClient struct {
	base string
	http *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("search endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

type wireResult struct {
	Contents []struct {
		Type  string `json:"type"`
		Video struct {
			VideoID            string `json:"videoId"`
			Title              string `json:"title"`
			ChannelTitle       string `json:"channelTitle"`
			ChannelID          string `json:"channelId"`
			PublishedTimeText  string `json:"publishedTimeText"`
			LengthText         string `json:"lengthText"`
			ViewCountText      string `json:"viewCountText"`
			DescriptionSnippet string `json:"descriptionSnippet"`
			Thumbnail          *struct {
				URL string `json:"url"`
			} `json:"thumbnail"`
		} `json:"video"`
	} `json:"contents"`
}

func (c *HTTPClient) Search(ctx context.Context, q Query) ([]Video, error) {
	vals := url.Values{}
	vals.Set("q", q.Topic)
	if q.Language != "" {
		vals.Set("hl", q.Language)
	}
	if q.Region != "" {
		vals.Set("gl", q.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+vals.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search backend: http %d", resp.StatusCode)
	}

	var wire wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("search backend: decode: %w", err)
	}

	out := make([]Video, 0, len(wire.Contents))
	for _, ct := range wire.Contents {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		if ct.Type != "video" {
			continue
		}
		v := ct.Video
		if v.VideoID == "" {
			continue
		}
		item := Video{
			ID:          v.VideoID,
			Title:       orNA(v.Title),
			Channel:     orNA(v.ChannelTitle),
			ChannelID:   v.ChannelID,
			Published:   orNA(v.PublishedTimeText),
			Duration:    orNA(v.LengthText),
			Views:       orNA(v.ViewCountText),
			Description: v.DescriptionSnippet,
			URL:         "https://www.youtube.com/watch?v=" + v.VideoID,
		}
		if v.Thumbnail != nil {
			item.Thumbnail = v.Thumbnail.URL
		}
		out = append(out, item)
	}
	return out, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
