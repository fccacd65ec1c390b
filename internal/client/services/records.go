package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/clientkeeper/internal/client/validate"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/jonboulle/clockwork"
)

var ErrReadOnlyField = errors.New("id and timestamps cannot be set by hand")

// Trigger queues a cloud sync after a local mutation.
type Trigger interface {
	TriggerSync(ctx context.Context)
}

// ClientService manages client records. Every mutation queues a sync.
type ClientService struct {
	clients   records.Repository
	reminders records.Repository
	trigger   Trigger
	clock     clockwork.Clock
}

func NewClientService(clients, reminders records.Repository, trigger Trigger, clock clockwork.Clock) *ClientService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClientService{clients: clients, reminders: reminders, trigger: trigger, clock: clock}
}

func (s *ClientService) Create(ctx context.Context, fields map[string]json.RawMessage) (models.Record, error) {
	if err := checkWritable(fields); err != nil {
		return models.Record{}, err
	}
	rec := models.NewRecord(s.clock.Now())
	if err := rec.Apply(fields); err != nil {
		return models.Record{}, err
	}
	if err := validate.Client(rec); err != nil {
		return models.Record{}, err
	}
	if err := s.clients.Upsert(ctx, rec); err != nil {
		return models.Record{}, fmt.Errorf("saving error: %w", err)
	}
	s.trigger.TriggerSync(ctx)
	return rec, nil
}

// Update sets fields and removes the unset ones.
func (s *ClientService) Update(ctx context.Context, id string, fields map[string]json.RawMessage, unset []string) (models.Record, error) {
	if err := checkWritable(fields); err != nil {
		return models.Record{}, err
	}
	stored, err := s.clients.Get(ctx, id)
	if err != nil {
		return models.Record{}, err
	}
	rec := stored.Clone()
	if err := rec.Apply(fields); err != nil {
		return models.Record{}, err
	}
	for _, k := range unset {
		rec.Delete(k)
	}
	rec.Touch(s.clock.Now())
	if err := validate.Client(rec); err != nil {
		return models.Record{}, err
	}
	if err := s.clients.Upsert(ctx, rec); err != nil {
		return models.Record{}, fmt.Errorf("saving error: %w", err)
	}
	s.trigger.TriggerSync(ctx)
	return rec, nil
}

// Delete removes the client and its reminders. Once the client is gone a
// sync is queued even if removing a reminder fails.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	if err := s.clients.Delete(ctx, id); err != nil {
		return err
	}
	defer s.trigger.TriggerSync(ctx)

	owned, err := s.reminders.FindBy(ctx, "client_id", id)
	if err != nil {
		return fmt.Errorf("client %s deleted, reminders kept: %w", id, err)
	}
	for _, r := range owned {
		if err := s.reminders.Delete(ctx, r.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("client %s deleted, reminder %s kept: %w", id, r.ID, err)
		}
	}
	return nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*models.Record, error) {
	return s.clients.Get(ctx, id)
}

func (s *ClientService) List(ctx context.Context) ([]models.Record, error) {
	return s.clients.GetAll(ctx)
}

// ReminderService manages reminder records. Every mutation queues a sync.
type ReminderService struct {
	clients   records.Repository
	reminders records.Repository
	trigger   Trigger
	clock     clockwork.Clock
}

func NewReminderService(clients, reminders records.Repository, trigger Trigger, clock clockwork.Clock) *ReminderService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReminderService{clients: clients, reminders: reminders, trigger: trigger, clock: clock}
}

// Create adds a reminder. clientID may be empty for a standalone reminder;
// otherwise the client must exist.
func (s *ReminderService) Create(ctx context.Context, clientID string, fields map[string]json.RawMessage) (models.Record, error) {
	if err := checkWritable(fields); err != nil {
		return models.Record{}, err
	}
	rec := models.NewRecord(s.clock.Now())
	if err := rec.Apply(fields); err != nil {
		return models.Record{}, err
	}
	if clientID != "" {
		if _, err := s.clients.Get(ctx, clientID); err != nil {
			return models.Record{}, fmt.Errorf("client %s: %w", clientID, err)
		}
		if err := rec.Set("clientId", clientID); err != nil {
			return models.Record{}, err
		}
	}
	if err := s.save(ctx, rec); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// MarkSent stamps the reminder as sent now.
func (s *ReminderService) MarkSent(ctx context.Context, id string) (models.Record, error) {
	return s.stamp(ctx, id, "sentAt", "sent_at", s.clock.Now())
}

// Snooze hides the reminder until the given time.
func (s *ReminderService) Snooze(ctx context.Context, id string, until time.Time) (models.Record, error) {
	return s.stamp(ctx, id, "snoozedUntil", "snoozed_until", until)
}

// stamp writes a timestamp in whichever naming convention the record uses.
func (s *ReminderService) stamp(ctx context.Context, id, camel, snake string, ts time.Time) (models.Record, error) {
	stored, err := s.reminders.Get(ctx, id)
	if err != nil {
		return models.Record{}, err
	}
	rec := stored.Clone()
	key := camel
	if _, ok := rec.Fields[snake]; ok {
		key = snake
	}
	if err := rec.Set(key, common.FormatTimestamp(ts)); err != nil {
		return models.Record{}, err
	}
	rec.Touch(s.clock.Now())
	if err := s.save(ctx, rec); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

func (s *ReminderService) save(ctx context.Context, rec models.Record) error {
	if err := validate.Reminder(rec); err != nil {
		return err
	}
	if err := s.reminders.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("saving error: %w", err)
	}
	s.trigger.TriggerSync(ctx)
	return nil
}

func (s *ReminderService) Delete(ctx context.Context, id string) error {
	if err := s.reminders.Delete(ctx, id); err != nil {
		return err
	}
	s.trigger.TriggerSync(ctx)
	return nil
}

func (s *ReminderService) List(ctx context.Context) ([]models.Record, error) {
	return s.reminders.GetAll(ctx)
}

func (s *ReminderService) ListByClient(ctx context.Context, clientID string) ([]models.Record, error) {
	return s.reminders.FindBy(ctx, "client_id", clientID)
}

func checkWritable(fields map[string]json.RawMessage) error {
	for _, k := range []string{"id", "createdAt", "updatedAt"} {
		if _, ok := fields[k]; ok {
			return fmt.Errorf("%s: %w", k, ErrReadOnlyField)
		}
	}
	return nil
}
