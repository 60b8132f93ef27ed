package dto

import (
	"strings"
	"time"
)

// WebhookEvent is the slice of the GitHub issue_comment payload this service
// acts on. Everything else in the delivery is ignored.
type WebhookEvent struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Comment    Comment    `json:"comment"`
	Repository Repository `json:"repository"`
}

type Issue struct {
	Number      int             `json:"number"`
	PullRequest *PullRequestRef `json:"pull_request,omitempty"`
}

// PullRequestRef is only present on issues that are pull requests.
type PullRequestRef struct {
	URL string `json:"url"`
}

type Comment struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	User      User      `json:"user"`
}

type User struct {
	Login string `json:"login"`
}

type Repository struct {
	FullName string `json:"full_name"`
}

// IsPullRequestComment reports whether this event is a comment created on a
// pull request.
func (e *WebhookEvent) IsPullRequestComment() bool {
	return e.Action == "created" && e.Issue.PullRequest != nil && e.Issue.PullRequest.URL != ""
}

// HasTrigger reports whether the comment body contains the trigger token.
func (e *WebhookEvent) HasTrigger(token string) bool {
	return token != "" && strings.Contains(e.Comment.Body, token)
}
