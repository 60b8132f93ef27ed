package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	appContext "github.com/alphabatem/common/context"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// AnalysisService sends document content to the AI backend for an accuracy
// review. Single request/response, no streaming.
type AnalysisService struct {
	appContext.DefaultService

	client *openai.Client
	model  string
}

const ANALYSIS_SVC = "analysis_svc"

const analysisSystemPrompt = "You are a technical documentation reviewer. " +
	"Review the submitted document for factual accuracy, internal consistency and unsupported claims. " +
	"Reply with a short Markdown assessment listing any statements that look wrong or need a citation."

func (svc AnalysisService) Id() string {
	return ANALYSIS_SVC
}

func (svc *AnalysisService) Configure(ctx *appContext.Context) error {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey != "" {
		clientConfig := openai.DefaultConfig(apiKey)
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			clientConfig.BaseURL = baseURL
		}
		svc.client = openai.NewClientWithConfig(clientConfig)
	}

	svc.model = os.Getenv("ANALYSIS_MODEL")
	if svc.model == "" {
		svc.model = openai.GPT4oMini
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *AnalysisService) Start() error {
	return nil
}

// Analyze returns the backend's free-form assessment of the document.
func (svc *AnalysisService) Analyze(ctx context.Context, text string) (string, error) {
	if svc.client == nil {
		return "", fmt.Errorf("analysis backend not configured")
	}

	resp, err := svc.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: svc.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: analysisSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("analysis request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("analysis backend returned no choices")
	}

	analysis := strings.TrimSpace(resp.Choices[0].Message.Content)
	if analysis == "" {
		return "", fmt.Errorf("analysis backend returned an empty result")
	}

	log.WithField("model", svc.model).WithField("chars", len(analysis)).Debug("Analysis completed")
	return analysis, nil
}
