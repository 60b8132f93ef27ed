package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/veridoc-bot/veridoc_api/dto"
	"github.com/veridoc-bot/veridoc_api/shared"
)

type HttpService struct {
	appContext.DefaultService

	validatorSvc    *ValidatorService
	orchestratorSvc *OrchestratorService

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.validatorSvc = svc.Service(VALIDATOR_SVC).(*ValidatorService)
	svc.orchestratorSvc = svc.Service(ORCHESTRATOR_SVC).(*OrchestratorService)

	svc.app = svc.buildApp()

	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

func (svc *HttpService) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder:  shared.JSONEncoder,
		JSONDecoder:  shared.JSONDecoder,
		ErrorHandler: svc.handleError,
	})

	app.Use(recover.New())
	app.Use(requestLogger())
	app.Use(MonitoringMiddleware())

	app.Get("/ping", svc.ping)
	app.Post("/", svc.handleWebhook)

	return app
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

// @Summary GitHub webhook receiver
// @Description Receives issue_comment webhook deliveries; trigger comments on pull requests start a document check
// @Tags webhook
// @Accept  json
// @Produce json
// @Success 200 {string} string "Event processed"
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router / [post]
func (svc *HttpService) handleWebhook(c *fiber.Ctx) error {
	delivery := c.Get(shared.HeaderDelivery)
	if delivery == "" {
		delivery = uuid.NewString()
	}

	// The event type header is informational only; the payload shape decides.
	log.WithField("delivery", delivery).
		WithField("event", c.Get(shared.HeaderEvent)).
		Debug("Webhook delivery received")

	if appErr := svc.validatorSvc.Validate(c); appErr != nil {
		return svc.rejectWith(c, appErr)
	}

	var event dto.WebhookEvent
	if err := c.BodyParser(&event); err != nil {
		// Parse internals stay out of the response body.
		log.WithError(err).WithField("delivery", delivery).Error("Malformed webhook payload")
		webhookEventsTotal.WithLabelValues("malformed").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Malformed payload"})
	}

	message, err := svc.orchestratorSvc.Process(c.Context(), delivery, &event)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok {
			return c.Status(appErr.StatusCode).JSON(fiber.Map{"error": appErr.Message})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.SendString(message)
}

func (svc *HttpService) rejectWith(c *fiber.Ctx, appErr *shared.AppError) error {
	if appErr.RetryAfter > 0 {
		c.Set(shared.HeaderRetryAfter, strconv.Itoa(appErr.RetryAfter))
	}
	webhookEventsTotal.WithLabelValues("rejected").Inc()
	return c.Status(appErr.StatusCode).JSON(fiber.Map{"error": appErr.Message})
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		if appErr.RetryAfter > 0 {
			c.Set(shared.HeaderRetryAfter, strconv.Itoa(appErr.RetryAfter))
		}
		return c.Status(appErr.StatusCode).JSON(fiber.Map{"error": appErr.Message})
	}

	code := fiber.StatusInternalServerError
	if e, isFiber := err.(*fiber.Error); isFiber {
		code = e.Code
	}

	log.WithError(err).Error("Unhandled request error")
	return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.WithField("method", c.Method()).
			WithField("path", c.Path()).
			WithField("status", c.Response().StatusCode()).
			WithField("client", ClientID(c)).
			WithField("duration", time.Since(start).String()).
			Info("Request handled")

		return err
	}
}
