package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/veridoc-bot/veridoc_api/dto"
	"github.com/veridoc-bot/veridoc_api/shared"
)

// SourceControl is the slice of GithubService the orchestrator consumes.
type SourceControl interface {
	ExtractReference(prURL string) (owner, repo string, number int, err error)
	FetchContent(ctx context.Context, owner, repo string, number int) (string, error)
	PostComment(ctx context.Context, owner, repo string, issueNumber int, body string) error
}

// AnalysisBackend is the slice of AnalysisService the orchestrator consumes.
type AnalysisBackend interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// FactChecker is the slice of FactCheckService the orchestrator consumes.
type FactChecker interface {
	FactCheck(ctx context.Context, text string) ([]dto.FactCheckResult, error)
}

// OrchestratorService drives one webhook invocation:
// acknowledge -> fetch content -> analyze + fact-check -> compose -> publish.
// Acknowledgment is fire-and-forget; content fetch runs under a fixed
// deadline; analysis and fact-check degrade independently to placeholders.
type OrchestratorService struct {
	appContext.DefaultService

	githubSvc    SourceControl
	analysisSvc  AnalysisBackend
	factCheckSvc FactChecker

	triggerToken    string
	fetchTimeout    time.Duration
	upstreamTimeout time.Duration
}

const ORCHESTRATOR_SVC = "orchestrator_svc"

const (
	contentFetchTimeout     = 30 * time.Second
	defaultUpstreamTimeout  = 120 * time.Second
	sideEffectTimeout       = 15 * time.Second
	analysisPlaceholder     = "_Analysis unavailable: the analysis backend did not return a result._"
	factCheckPlaceholder    = "_No substantial claims were found to verify._"
	factCheckErrPlaceholder = "_Fact check unavailable: the search backend did not return results._"
	ackCommentBody          = "🔍 Checking your document, a report will follow shortly."
)

func (svc OrchestratorService) Id() string {
	return ORCHESTRATOR_SVC
}

func (svc *OrchestratorService) Configure(ctx *appContext.Context) error {
	svc.triggerToken = os.Getenv("TRIGGER_TOKEN")
	if svc.triggerToken == "" {
		svc.triggerToken = shared.DefaultTriggerToken
	}

	svc.fetchTimeout = contentFetchTimeout
	svc.upstreamTimeout = defaultUpstreamTimeout
	if secs := envInt("UPSTREAM_TIMEOUT_SECONDS", 0); secs > 0 {
		svc.upstreamTimeout = time.Duration(secs) * time.Second
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *OrchestratorService) Start() error {
	svc.githubSvc = svc.Service(GITHUB_SVC).(*GithubService)
	svc.analysisSvc = svc.Service(ANALYSIS_SVC).(*AnalysisService)
	svc.factCheckSvc = svc.Service(FACT_CHECK_SVC).(*FactCheckService)
	return nil
}

type prRef struct {
	owner  string
	repo   string
	number int
}

// Process handles one validated webhook delivery and returns the 200 response
// body. A non-nil error is always a *shared.AppError carrying the failure
// reason for the JSON error body.
func (svc *OrchestratorService) Process(ctx context.Context, delivery string, event *dto.WebhookEvent) (string, error) {
	logger := log.WithField("delivery", delivery)

	if !event.IsPullRequestComment() || !event.HasTrigger(svc.triggerToken) {
		logger.Debug("Event does not match trigger, ignoring")
		webhookEventsTotal.WithLabelValues("ignored").Inc()
		return shared.MsgEventProcessed, nil
	}

	owner, repo, number, err := svc.githubSvc.ExtractReference(event.Issue.PullRequest.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve pull request reference")
		webhookEventsTotal.WithLabelValues("failed").Inc()
		return "", shared.NewUpstreamError(err, err.Error())
	}
	ref := &prRef{owner: owner, repo: repo, number: number}

	logger = logger.WithField("pr", fmt.Sprintf("%s/%s#%d", owner, repo, number))
	logger.Info("Trigger comment received, starting document check")

	// Detached acknowledgment: the pipeline never waits on it and its
	// failure is only logged.
	go func() {
		ackCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := svc.githubSvc.PostComment(ackCtx, ref.owner, ref.repo, event.Issue.Number, ackCommentBody); err != nil {
			logger.WithError(err).Warn("Failed to post acknowledgment comment")
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, svc.fetchTimeout)
	defer cancel()

	content, err := svc.githubSvc.FetchContent(fetchCtx, ref.owner, ref.repo, ref.number)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || fetchCtx.Err() == context.DeadlineExceeded {
			reason = "Timeout"
		}
		logger.WithError(err).Error("Content fetch failed")
		return "", svc.fail(event, ref, reason)
	}

	upstreamCtx, cancelUpstream := context.WithTimeout(ctx, svc.upstreamTimeout)
	defer cancelUpstream()

	var (
		wg       sync.WaitGroup
		analysis string
		analErr  error
		results  []dto.FactCheckResult
		fcErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		analysis, analErr = svc.analysisSvc.Analyze(upstreamCtx, content)
	}()
	go func() {
		defer wg.Done()
		results, fcErr = svc.factCheckSvc.FactCheck(upstreamCtx, content)
	}()
	wg.Wait()

	// Both steps degrade to a placeholder instead of failing the pipeline.
	if analErr != nil {
		logger.WithError(analErr).Warn("Analysis failed, substituting placeholder")
		analysis = analysisPlaceholder
	}
	if fcErr != nil {
		logger.WithError(fcErr).Warn("Fact check failed, substituting placeholder")
		results = nil
	}

	report := composeReport(analysis, results, fcErr != nil, event.Comment.CreatedAt)

	if err := svc.githubSvc.PostComment(ctx, ref.owner, ref.repo, event.Issue.Number, report); err != nil {
		logger.WithError(err).Error("Failed to publish report")
		return "", svc.fail(event, ref, "Failed to publish report: "+err.Error())
	}

	logger.Info("Document check completed")
	webhookEventsTotal.WithLabelValues("completed").Inc()
	return shared.MsgCheckComplete, nil
}

// fail posts a best-effort error comment and converts the reason into the
// pipeline's terminal error. The HTTP response never waits on the comment
// beyond its own short deadline.
func (svc *OrchestratorService) fail(event *dto.WebhookEvent, ref *prRef, reason string) error {
	webhookEventsTotal.WithLabelValues("failed").Inc()

	if ref != nil {
		commentCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		body := fmt.Sprintf("❌ Document check failed: %s", reason)
		if err := svc.githubSvc.PostComment(commentCtx, ref.owner, ref.repo, event.Issue.Number, body); err != nil {
			log.WithError(err).Warn("Failed to post error comment")
		}
	}

	return shared.NewUpstreamError(nil, reason)
}

func composeReport(analysis string, results []dto.FactCheckResult, factCheckFailed bool, commentedAt time.Time) string {
	var b strings.Builder

	b.WriteString("## 📋 Document Check Report\n\n")

	b.WriteString("### 🤖 Analysis\n\n")
	b.WriteString(analysis)
	b.WriteString("\n\n")

	b.WriteString("### 🔎 Fact Check\n\n")
	switch {
	case factCheckFailed:
		b.WriteString(factCheckErrPlaceholder)
		b.WriteString("\n")
	case len(results) == 0:
		b.WriteString(factCheckPlaceholder)
		b.WriteString("\n")
	default:
		for _, result := range results {
			b.WriteString(fmt.Sprintf("**Claim:** %s\n", result.Claim))
			for _, ref := range result.References {
				b.WriteString(fmt.Sprintf("- [%s](%s)\n", ref.Title, ref.URL))
			}
			b.WriteString("\n")
		}
	}

	if !commentedAt.IsZero() {
		elapsed := time.Since(commentedAt).Round(time.Second)
		b.WriteString(fmt.Sprintf("\n---\n⏱ Processed in %s\n", elapsed))
	}

	return b.String()
}
