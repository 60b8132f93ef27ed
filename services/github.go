package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// GithubService is the source-control collaborator: it resolves pull request
// references, fetches the documentation content of a PR and posts comments.
type GithubService struct {
	appContext.DefaultService

	httpClient *http.Client
	apiURL     string
	token      string
}

const GITHUB_SVC = "github_svc"

// Matches the API pull request URL delivered in the webhook payload,
// e.g. https://api.github.com/repos/octo/docs/pulls/42
var prPathPattern = regexp.MustCompile(`^/repos/([^/]+)/([^/]+)/pulls/(\d+)$`)

var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

func (svc GithubService) Id() string {
	return GITHUB_SVC
}

func (svc *GithubService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	svc.apiURL = os.Getenv("GITHUB_API_URL")
	if svc.apiURL == "" {
		svc.apiURL = "https://api.github.com"
	}
	svc.token = os.Getenv("GITHUB_TOKEN")
	return svc.DefaultService.Configure(ctx)
}

func (svc *GithubService) Start() error {
	return nil
}

// ExtractReference parses an API pull request URL into owner, repo and number.
func (svc *GithubService) ExtractReference(prURL string) (string, string, int, error) {
	parsed, err := url.Parse(prURL)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid pull request URL: %w", err)
	}

	match := prPathPattern.FindStringSubmatch(parsed.Path)
	if match == nil {
		return "", "", 0, fmt.Errorf("URL does not reference a pull request: %s", prURL)
	}

	number, err := strconv.Atoi(match[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid pull request number: %w", err)
	}

	return match[1], match[2], number, nil
}

type prFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	RawURL   string `json:"raw_url"`
}

// FetchContent downloads the added/modified Markdown files of a pull request
// and concatenates them. A PR without qualifying document files is an error.
func (svc *GithubService) FetchContent(ctx context.Context, owner, repo string, number int) (string, error) {
	listURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100", svc.apiURL, owner, repo, number)

	body, err := svc.get(ctx, listURL)
	if err != nil {
		return "", fmt.Errorf("failed to list pull request files: %w", err)
	}

	var files []prFile
	if err := json.Unmarshal(body, &files); err != nil {
		return "", fmt.Errorf("failed to decode pull request files: %w", err)
	}

	var builder strings.Builder
	fetched := 0
	for _, f := range files {
		if f.Status != "added" && f.Status != "modified" {
			continue
		}
		if !markdownExtensions[strings.ToLower(filepath.Ext(f.Filename))] {
			continue
		}

		content, err := svc.get(ctx, f.RawURL)
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", f.Filename, err)
		}

		builder.WriteString(fmt.Sprintf("# File: %s\n\n", f.Filename))
		builder.Write(content)
		builder.WriteString("\n\n")
		fetched++
	}

	if fetched == 0 {
		return "", fmt.Errorf("no documentation files found in pull request %s/%s#%d", owner, repo, number)
	}

	log.WithField("pr", fmt.Sprintf("%s/%s#%d", owner, repo, number)).
		WithField("files", fetched).
		Debug("Fetched pull request content")

	return builder.String(), nil
}

// PostComment creates an issue comment on the pull request.
func (svc *GithubService) PostComment(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	commentURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", svc.apiURL, owner, repo, issueNumber)

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, commentURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	svc.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github api returned status %d posting comment", resp.StatusCode)
	}

	return nil
}

func (svc *GithubService) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	svc.setHeaders(req)

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (svc *GithubService) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+svc.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
