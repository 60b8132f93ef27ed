package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"

	"github.com/veridoc-bot/veridoc_api/dto"
)

// SearchService queries the web-search backend (Brave Search API shape:
// categorized results plus a mixed relevance ranking).
type SearchService struct {
	appContext.DefaultService

	httpClient *http.Client
	apiURL     string
	apiKey     string
}

const SEARCH_SVC = "search_svc"

func (svc SearchService) Id() string {
	return SEARCH_SVC
}

func (svc *SearchService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	svc.apiURL = os.Getenv("SEARCH_API_URL")
	if svc.apiURL == "" {
		svc.apiURL = "https://api.search.brave.com/res/v1/web/search"
	}
	svc.apiKey = os.Getenv("BRAVE_API_KEY")
	return svc.DefaultService.Configure(ctx)
}

func (svc *SearchService) Start() error {
	return nil
}

// Query runs one search and returns the raw categorized response.
func (svc *SearchService) Query(ctx context.Context, q string) (*dto.SearchResponse, error) {
	reqURL := fmt.Sprintf("%s?q=%s", svc.apiURL, url.QueryEscape(q))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", svc.apiKey)

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var result dto.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return &result, nil
}
