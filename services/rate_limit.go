package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/veridoc-bot/veridoc_api/dto"
	"github.com/veridoc-bot/veridoc_api/model"
)

// RateLimiter decides whether a request from a client is admitted.
type RateLimiter interface {
	Admit(ctx context.Context, clientID string, now time.Time) dto.RateLimitDecision
}

// RateLimitService keeps a sliding window of request timestamps per client in
// the key-value store. The limiter is advisory: every store failure resolves
// to allow, so legitimate traffic is never blocked by an unavailable Redis.
type RateLimitService struct {
	appContext.DefaultService

	store KVStore

	maxRequests   int
	windowSeconds int
}

type rateLimitConfig struct {
	MaxRequests   int `validate:"required,gt=0"`
	WindowSeconds int `validate:"required,gt=0"`
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const (
	defaultMaxRequests   = 100
	defaultWindowSeconds = 3600
)

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.maxRequests = envInt("RATE_LIMIT_MAX_REQUESTS", defaultMaxRequests)
	svc.windowSeconds = envInt("RATE_LIMIT_WINDOW_SECONDS", defaultWindowSeconds)

	cfg := rateLimitConfig{MaxRequests: svc.maxRequests, WindowSeconds: svc.windowSeconds}
	if err := dto.GetValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid rate limit configuration: %w", err)
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

// Admit records the current request in the client's window and decides
// allow/deny. The current request counts as consumption: the maxRequests-th
// request within the window is still allowed, the one after it is denied.
func (svc *RateLimitService) Admit(ctx context.Context, clientID string, now time.Time) dto.RateLimitDecision {
	key := "ratelimit:" + clientID
	window := time.Duration(svc.windowSeconds) * time.Second

	var record model.RateLimitRecord

	raw, err := svc.store.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("client", clientID).Warn("Rate limit read failed, treating window as empty")
	} else if raw != "" {
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			log.WithError(err).WithField("client", clientID).Warn("Malformed rate limit record, treating window as empty")
			record = model.RateLimitRecord{}
		}
	}

	nowSec := now.Unix()
	record.Prune(nowSec - int64(svc.windowSeconds))
	record.Append(nowSec)

	decision := dto.RateLimitDecision{Allowed: true}
	if record.Count() > svc.maxRequests {
		decision = dto.RateLimitDecision{Allowed: false, RetryAfterSeconds: svc.windowSeconds}
	}

	// The updated window is persisted whether or not the request was admitted,
	// so denied traffic keeps the window warm. A write failure never changes
	// the decision.
	if err := svc.store.Set(ctx, key, record, window); err != nil {
		log.WithError(err).WithField("client", clientID).Warn("Rate limit write failed")
	}

	rateLimitDecisionsTotal.WithLabelValues(decisionLabel(decision.Allowed)).Inc()
	return decision
}

func decisionLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func envInt(name string, fallback int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
		log.WithField("var", name).Warn("Ignoring non-numeric environment value")
	}
	return fallback
}
