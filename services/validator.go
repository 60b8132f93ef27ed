package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/veridoc-bot/veridoc_api/shared"
)

// ValidatorService gates every webhook delivery before it reaches the
// orchestrator. The gates run in a fixed order: configuration completeness,
// rate limiting, then signature verification. Rate limiting runs before the
// signature check so unauthenticated abuse is still throttled.
type ValidatorService struct {
	appContext.DefaultService

	limiter RateLimiter

	webhookSecret string
	githubToken   string
	openaiKey     string
	searchKey     string
}

const VALIDATOR_SVC = "validator_svc"

func (svc ValidatorService) Id() string {
	return VALIDATOR_SVC
}

func (svc *ValidatorService) Configure(ctx *appContext.Context) error {
	svc.webhookSecret = os.Getenv("GITHUB_WEBHOOK_SECRET")
	svc.githubToken = os.Getenv("GITHUB_TOKEN")
	svc.openaiKey = os.Getenv("OPENAI_API_KEY")
	svc.searchKey = os.Getenv("BRAVE_API_KEY")
	return svc.DefaultService.Configure(ctx)
}

func (svc *ValidatorService) Start() error {
	svc.limiter = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	return nil
}

// Validate returns nil when the request may proceed. Each gate short-circuits.
func (svc *ValidatorService) Validate(c *fiber.Ctx) *shared.AppError {
	if missing := svc.missingConfig(); len(missing) > 0 {
		log.WithField("missing", strings.Join(missing, ", ")).Error("Rejecting request, service misconfigured")
		return shared.NewConfigurationError(missing...)
	}

	clientID := ClientID(c)
	decision := svc.limiter.Admit(c.Context(), clientID, time.Now())
	if !decision.Allowed {
		log.WithField("client", clientID).Warn("Rate limit exceeded")
		return shared.NewRateLimitError(decision.RetryAfterSeconds)
	}

	signature := c.Get(shared.HeaderSignature)
	if signature == "" {
		log.WithField("client", clientID).Warn("Webhook delivery without signature header")
		return shared.NewUnauthorizedError("Missing signature")
	}

	if !VerifySignature(c.Body(), signature, svc.webhookSecret) {
		log.WithField("client", clientID).Warn("Webhook signature verification failed")
		return shared.NewUnauthorizedError("Invalid signature")
	}

	return nil
}

func (svc *ValidatorService) missingConfig() []string {
	var missing []string
	if svc.webhookSecret == "" {
		missing = append(missing, "GITHUB_WEBHOOK_SECRET")
	}
	if svc.githubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if svc.openaiKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if svc.searchKey == "" {
		missing = append(missing, "BRAVE_API_KEY")
	}
	return missing
}

// VerifySignature checks an X-Hub-Signature-256 header value against the raw,
// unmodified request body.
func VerifySignature(body []byte, header, secret string) bool {
	if !strings.HasPrefix(header, shared.SignaturePrefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, shared.SignaturePrefix)))
}

// ClientID resolves the caller identity from the trusted proxy header. When
// the header is absent the sentinel identifier is used, which pools all
// direct traffic into one rate limit window.
func ClientID(c *fiber.Ctx) string {
	forwarded := c.Get(shared.HeaderForwarded)
	if forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	return shared.UnknownClient
}
