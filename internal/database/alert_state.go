package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// StoreConflictError reports a compare-and-swap update that exhausted its
// retry budget. The caller treats the record as failed so the queue
// redelivers it.
type StoreConflictError struct {
	Fingerprint string
	Attempts    int
}

func (e *StoreConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of alert state %s after %d attempts", e.Fingerprint, e.Attempts)
}

// BackoffPolicy maps a zero-based retry attempt to the delay before that
// retry. It is a standalone function so retry behavior is unit-testable
// without real timers or IO.
type BackoffPolicy func(attempt int) time.Duration

// DefaultBackoff doubles from 100ms: 100ms, 200ms, 400ms.
func DefaultBackoff(attempt int) time.Duration {
	return 100 * time.Millisecond << attempt
}

// DefaultMaxRetries is the compare-and-swap retry budget.
const DefaultMaxRetries = 3

// AlertStateStore is the durable keyed storage of per-fingerprint
// lifecycle state. It is the only shared mutable resource between workers;
// concurrent writers racing on the same fingerprint are reconciled with an
// optimistic compare-and-swap on last_provider_state_at.
type AlertStateStore struct {
	db         *gorm.DB
	backoff    BackoffPolicy
	maxRetries int
	ttl        time.Duration

	// beforeWrite runs between the conflict-path re-read and the
	// conditional update. Tests use it to race a concurrent writer.
	beforeWrite func()
}

// NewAlertStateStore creates a store over db with default retry policy
// and TTL.
func NewAlertStateStore(db *gorm.DB) *AlertStateStore {
	return &AlertStateStore{
		db:         db,
		backoff:    DefaultBackoff,
		maxRetries: DefaultMaxRetries,
		ttl:        DefaultStateTTL,
	}
}

// WithTTL overrides the default row TTL.
func (s *AlertStateStore) WithTTL(ttl time.Duration) *AlertStateStore {
	s.ttl = ttl
	return s
}

// LoadState fetches the lifecycle row for a fingerprint, or nil if absent.
// A row that fails minimal shape validation is a hard error rather than
// returned as data.
func (s *AlertStateStore) LoadState(ctx context.Context, fingerprint string) (*AlertState, error) {
	var state AlertState
	err := s.db.WithContext(ctx).First(&state, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := validateStateRow(&state); err != nil {
		return nil, fmt.Errorf("malformed alert state row %s: %w", fingerprint, err)
	}
	return &state, nil
}

// SaveState performs the create-if-absent write for a fingerprint. When the
// row already exists the call falls through to the conflict-resolution
// update path instead of erroring.
func (s *AlertStateStore) SaveState(ctx context.Context, fingerprint string, event *alerts.AlertEvent, env alerts.Envelope, action alerts.Action, issueRepo string, issueNumber *int) error {
	now := time.Now().UTC()
	row := &AlertState{
		Fingerprint:         fingerprint,
		Status:              statusFor(action),
		Team:                event.Team,
		Priority:            string(event.Priority),
		Title:               event.Title,
		IssueRepo:           issueRepo,
		IssueNumber:         issueNumber,
		LastProviderStateAt: event.OccurredAt,
		FirstSeenAt:         now,
		LastSeenAt:          now,
		SchemaVersion:       event.SchemaVersion,
		ProviderVersion:     event.ProviderVersion,
		Identity:            identityJSONB(event.Identity),
		EnvelopeDigest:      env.Digest(),
		ExpiresAt:           now.Add(s.ttl).Unix(),
	}

	err := s.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.resolveConflict(ctx, fingerprint, event, action, issueRepo, issueNumber)
	}
	return err
}

// UpdateState applies an unconditional field-level merge, always also
// bumping last_seen_at.
func (s *AlertStateStore) UpdateState(ctx context.Context, fingerprint string, updates map[string]interface{}) error {
	merged := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		merged[k] = v
	}
	merged["last_seen_at"] = time.Now().UTC()
	return s.db.WithContext(ctx).Model(&AlertState{}).
		Where("fingerprint = ?", fingerprint).
		Updates(merged).Error
}

// resolveConflict reconciles a create that collided with an existing row.
// Each cycle re-loads the current row, applies the out-of-order guard, and
// performs an update conditioned on last_provider_state_at still holding
// the value just read. A failed condition means another writer got there
// first; the cycle retries with backoff until the budget runs out.
func (s *AlertStateStore) resolveConflict(ctx context.Context, fingerprint string, event *alerts.AlertEvent, action alerts.Action, issueRepo string, issueNumber *int) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		var current AlertState
		err := s.db.WithContext(ctx).First(&current, "fingerprint = ?", fingerprint).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("fingerprint", fingerprint).Msg("alert state vanished between load and write, nothing to update")
			return nil
		}
		if err != nil {
			return err
		}

		if event.OccurredAt.Before(current.LastProviderStateAt) {
			log.Info().
				Str("fingerprint", fingerprint).
				Time("incoming", event.OccurredAt).
				Time("stored", current.LastProviderStateAt).
				Msg("discarding out-of-order alert update")
			return nil
		}

		updates := map[string]interface{}{
			"status":                 statusFor(action),
			"team":                   event.Team,
			"priority":               string(event.Priority),
			"title":                  event.Title,
			"last_provider_state_at": event.OccurredAt,
			"last_seen_at":           time.Now().UTC(),
			"schema_version":         event.SchemaVersion,
			"provider_version":       event.ProviderVersion,
		}
		if issueNumber != nil && current.IssueNumber == nil {
			updates["issue_number"] = *issueNumber
			if issueRepo != "" {
				updates["issue_repo"] = issueRepo
			}
		}
		// A manually closed alert is reopened only by a genuinely new
		// firing; resolves leave the manual close untouched.
		if current.ManuallyClosed && action == alerts.ActionCreate {
			updates["manually_closed"] = false
			updates["manually_closed_at"] = nil
			log.Info().Str("fingerprint", fingerprint).Msg("reopening manually closed alert on new firing")
		}

		if s.beforeWrite != nil {
			s.beforeWrite()
		}

		tx := s.db.WithContext(ctx).Model(&AlertState{}).
			Where("fingerprint = ? AND last_provider_state_at = ?", fingerprint, current.LastProviderStateAt).
			Updates(updates)
		if tx.Error != nil {
			return tx.Error
		}
		if tx.RowsAffected == 1 {
			return nil
		}

		if attempt < s.maxRetries {
			log.Warn().
				Str("fingerprint", fingerprint).
				Int("attempt", attempt+1).
				Msg("compare-and-swap lost to a concurrent writer, retrying")
			time.Sleep(s.backoff(attempt))
		}
	}
	return &StoreConflictError{Fingerprint: fingerprint, Attempts: s.maxRetries + 1}
}

func statusFor(action alerts.Action) string {
	if action == alerts.ActionClose {
		return AlertStatusClosed
	}
	return AlertStatusOpen
}

func validateStateRow(state *AlertState) error {
	if state.Fingerprint == "" {
		return errors.New("empty fingerprint")
	}
	if state.Status != AlertStatusOpen && state.Status != AlertStatusClosed {
		return fmt.Errorf("invalid status %q", state.Status)
	}
	if state.Team == "" {
		return errors.New("empty team")
	}
	return nil
}

func identityJSONB(identity alerts.Identity) JSONB {
	encoded, err := json.Marshal(identity)
	if err != nil {
		return JSONB{}
	}
	var out JSONB
	if err := json.Unmarshal(encoded, &out); err != nil {
		return JSONB{}
	}
	return out
}
