package services

import (
	"context"
	"strings"
	"sync"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/veridoc-bot/veridoc_api/dto"
)

// SearchBackend is the slice of SearchService the engine consumes.
type SearchBackend interface {
	Query(ctx context.Context, q string) (*dto.SearchResponse, error)
}

// FactCheckService extracts candidate claims from document text and resolves
// each against the search backend. Queries run concurrently; the output keeps
// the claims in extraction order.
type FactCheckService struct {
	appContext.DefaultService

	search SearchBackend
}

const FACT_CHECK_SVC = "fact_check_svc"

// Claim extraction thresholds. These are deliberately naive sentence
// heuristics (periods only, no abbreviation handling); downstream behavior is
// defined against them.
const (
	claimMinLength = 20
	claimMinWords  = 5
	maxClaims      = 3
	maxReferences  = 5

	// News results with descriptions shorter than this carry no usable context.
	newsMinDescription = 5
)

func (svc FactCheckService) Id() string {
	return FACT_CHECK_SVC
}

func (svc *FactCheckService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *FactCheckService) Start() error {
	svc.search = svc.Service(SEARCH_SVC).(*SearchService)
	return nil
}

// FactCheck resolves the extracted claims. A claim whose query fails or
// returns no usable results is dropped; callers never see a claim with an
// empty reference set.
func (svc *FactCheckService) FactCheck(ctx context.Context, text string) ([]dto.FactCheckResult, error) {
	claims := extractClaims(text)
	if len(claims) == 0 {
		return nil, nil
	}

	resolved := make([]*dto.FactCheckResult, len(claims))

	var wg sync.WaitGroup
	for i, claim := range claims {
		wg.Add(1)
		go func(i int, claim string) {
			defer wg.Done()

			resp, err := svc.search.Query(ctx, claim)
			if err != nil {
				log.WithError(err).WithField("claim", claim).Warn("Search query failed, dropping claim")
				return
			}

			refs := collectReferences(resp, maxReferences)
			if len(refs) == 0 {
				return
			}

			resolved[i] = &dto.FactCheckResult{Claim: claim, References: refs}
		}(i, claim)
	}
	wg.Wait()

	var results []dto.FactCheckResult
	for _, r := range resolved {
		if r != nil {
			results = append(results, *r)
			factCheckReferencesTotal.Add(float64(len(r.References)))
		}
	}

	factCheckClaimsTotal.Add(float64(len(claims)))
	return results, nil
}

// extractClaims splits text on sentence-terminating periods and keeps the
// first maxClaims sentences that are substantial enough to verify.
func extractClaims(text string) []string {
	var claims []string
	for _, part := range strings.Split(text, ".") {
		sentence := strings.TrimSpace(part)
		if len(sentence) < claimMinLength || len(strings.Fields(sentence)) < claimMinWords {
			continue
		}
		claims = append(claims, sentence)
		if len(claims) == maxClaims {
			break
		}
	}
	return claims
}

// collectReferences flattens a categorized search response into an ordered,
// deduplicated reference list. The backend's mixed ranking dictates the
// interleave across categories; without one, categories are taken in
// web, news, faq order.
func collectReferences(resp *dto.SearchResponse, limit int) []dto.Reference {
	if resp == nil {
		return nil
	}

	var refs []dto.Reference
	seen := make(map[string]bool)

	add := func(r dto.Reference) {
		if len(refs) >= limit || r.URL == "" || seen[r.URL] {
			return
		}
		seen[r.URL] = true
		refs = append(refs, r)
	}

	addWeb := func(i int) {
		if resp.Web == nil || i < 0 || i >= len(resp.Web.Results) {
			return
		}
		r := resp.Web.Results[i]
		if strings.TrimSpace(r.Description) == "" {
			return
		}
		add(dto.Reference{Title: r.Title, URL: r.URL})
	}

	addNews := func(i int) {
		if resp.News == nil || i < 0 || i >= len(resp.News.Results) {
			return
		}
		r := resp.News.Results[i]
		desc := strings.TrimSpace(r.Description)
		if desc == "" || len(desc) < newsMinDescription {
			return
		}
		add(dto.Reference{Title: r.Title, URL: r.URL})
	}

	addFAQ := func(i int) {
		if resp.FAQ == nil || i < 0 || i >= len(resp.FAQ.Results) {
			return
		}
		r := resp.FAQ.Results[i]
		if strings.TrimSpace(r.Answer) == "" {
			return
		}
		title := r.Title
		if title == "" {
			title = r.Question
		}
		add(dto.Reference{Title: title, URL: r.URL})
	}

	addAll := func(category string) {
		switch category {
		case "web":
			if resp.Web != nil {
				for i := range resp.Web.Results {
					addWeb(i)
				}
			}
		case "news":
			if resp.News != nil {
				for i := range resp.News.Results {
					addNews(i)
				}
			}
		case "faq":
			if resp.FAQ != nil {
				for i := range resp.FAQ.Results {
					addFAQ(i)
				}
			}
		}
	}

	if resp.Mixed != nil && len(resp.Mixed.Main) > 0 {
		for _, entry := range resp.Mixed.Main {
			if entry.All {
				addAll(entry.Type)
				continue
			}
			switch entry.Type {
			case "web":
				addWeb(entry.Index)
			case "news":
				addNews(entry.Index)
			case "faq":
				addFAQ(entry.Index)
			}
		}
	} else {
		addAll("web")
		addAll("news")
		addAll("faq")
	}

	return refs
}
