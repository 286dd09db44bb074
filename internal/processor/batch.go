package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/alertfunnel/alertfunnel/internal/database"
	"github.com/alertfunnel/alertfunnel/internal/utils"
	"github.com/rs/zerolog/log"
)

// StateStore is the slice of the alert state store the batch handler needs.
type StateStore interface {
	LoadState(ctx context.Context, fingerprint string) (*database.AlertState, error)
	SaveState(ctx context.Context, fingerprint string, event *alerts.AlertEvent, env alerts.Envelope, action alerts.Action, issueRepo string, issueNumber *int) error
}

// IssueCreator files a tracking issue for a newly created alert. The
// implementation owns idempotent label creation.
type IssueCreator interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (int, error)
}

// AreaLabel is the fixed label attached to every filed issue.
const AreaLabel = "alert"

// BatchHandler drives the Processor over a batch of inbound messages.
// Messages are processed independently and sequentially; a failure in one
// never aborts the rest. The return value is the list of failed message
// ids, which the queue infrastructure redelivers.
type BatchHandler struct {
	processor *Processor
	store     StateStore
	issues    IssueCreator // nil disables issue filing
	issueRepo string
}

// NewBatchHandler creates a batch handler. issues may be nil to disable
// the issue-tracker collaborator.
func NewBatchHandler(proc *Processor, store StateStore, issues IssueCreator, issueRepo string) *BatchHandler {
	return &BatchHandler{
		processor: proc,
		store:     store,
		issues:    issues,
		issueRepo: issueRepo,
	}
}

// Handle processes every message in the batch and returns the ids of the
// ones that failed.
func (h *BatchHandler) Handle(ctx context.Context, msgs []Message) []string {
	failed := make([]string, 0)
	for _, msg := range msgs {
		if err := h.handleOne(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("message_id", msg.ID).
				Str("body", utils.EscapeForLogging(msg.Body, 256)).
				Msg("alert message failed")
			failed = append(failed, msg.ID)
		}
	}
	return failed
}

func (h *BatchHandler) handleOne(ctx context.Context, msg Message) error {
	result, err := h.processor.Process(msg)
	if err != nil {
		// Normalization failed: no state mutation was attempted.
		return err
	}

	existing, err := h.store.LoadState(ctx, result.Fingerprint)
	if err != nil {
		return err
	}

	var issueNumber *int
	if existing == nil && result.Action == alerts.ActionCreate && h.issues != nil {
		number, err := h.issues.CreateIssue(ctx, result.Event.Title, issueBody(result.Event), issueLabels(result.Event))
		if err != nil {
			// Collaborator failures degrade to "no ticket created"; the
			// state write still proceeds.
			log.Warn().
				Err(err).
				Str("fingerprint", result.Fingerprint).
				Msg("issue creation failed, continuing without ticket")
		} else {
			issueNumber = &number
		}
	}

	if err := h.store.SaveState(ctx, result.Fingerprint, result.Event, result.Envelope, result.Action, h.issueRepo, issueNumber); err != nil {
		return err
	}

	log.Info().
		Str("fingerprint", result.Fingerprint).
		Str("action", string(result.Action)).
		Str("source", string(result.Event.Source)).
		Str("team", result.Event.Team).
		Str("message_id", msg.ID).
		Msg("alert processed")
	return nil
}

func issueLabels(event *alerts.AlertEvent) []string {
	return []string{
		AreaLabel,
		"priority/" + strings.ToLower(string(event.Priority)),
		"team/" + event.Team,
		"source/" + string(event.Source),
	}
}

func issueBody(event *alerts.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**State:** %s\n", event.State)
	fmt.Fprintf(&b, "**Priority:** %s\n", event.Priority)
	fmt.Fprintf(&b, "**Team:** %s\n", event.Team)
	fmt.Fprintf(&b, "**Source:** %s\n", event.Source)
	fmt.Fprintf(&b, "**Occurred:** %s\n", event.OccurredAt.Format("2006-01-02 15:04:05 MST"))
	if event.Resource.ID != "" {
		fmt.Fprintf(&b, "**Resource:** %s/%s\n", event.Resource.Type, event.Resource.ID)
	}
	if event.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", utils.TruncateText(event.Description, 1024))
	}
	if event.Reason != "" {
		fmt.Fprintf(&b, "\n> %s\n", utils.TruncateText(event.Reason, 512))
	}
	if event.Links.RunbookURL != "" {
		fmt.Fprintf(&b, "\nRunbook: %s\n", event.Links.RunbookURL)
	}
	return b.String()
}
