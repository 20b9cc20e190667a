// Package tasks manages the staff task board.
package tasks

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

// Service manages tasks.
type Service struct {
	store store.Tasks
	log   *zap.Logger
	now   func() time.Time
}

// New returns a task service.
func New(st store.Tasks, log *zap.Logger) *Service {
	return &Service{store: st, log: log, now: time.Now}
}

// Input is the body of a create or update.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (in Input) check(requireStatus bool) (models.TaskStatus, error) {
	if err := validate.All(
		func() error { return validate.Required(in.Title, "title") },
		func() error { return validate.Required(in.Description, "description") },
	); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Status) == "" {
		if requireStatus {
			return "", apperr.Validation("status is required")
		}
		return models.TaskPending, nil
	}
	st, ok := models.ParseTaskStatus(in.Status)
	if !ok {
		return "", apperr.Validation("status must be pending, in-progress or completed")
	}
	return st, nil
}

// List returns every task.
func (s *Service) List(ctx context.Context) ([]models.Task, error) {
	return s.store.Tasks(ctx)
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Create adds a task; the status defaults to pending.
func (s *Service) Create(ctx context.Context, in Input) (*models.Task, error) {
	st, err := in.check(false)
	if err != nil {
		return nil, err
	}
	now := models.Stamp(s.now())
	t := &models.Task{
		ID:          models.NewID(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      st,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info("task created", zap.String("task_id", t.ID))
	return t, nil
}

// Update replaces title, description and status; all three are required.
func (s *Service) Update(ctx context.Context, id string, in Input) (*models.Task, error) {
	st, err := in.check(true)
	if err != nil {
		return nil, err
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Title = strings.TrimSpace(in.Title)
	t.Description = strings.TrimSpace(in.Description)
	t.Status = st
	t.UpdatedAt = models.Stamp(s.now())
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.log.Info("task deleted", zap.String("task_id", id))
	return nil
}
