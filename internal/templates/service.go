// Package templates owns notification template authoring and rendering.
// Stored templates are looked up per (event type, channel); when none exists
// the embedded defaults are used so delivery never blocks on configuration.
package templates

import (
	"context"
	"embed"
	"fmt"

	"github.com/google/uuid"

	"testpulse/internal/store"
	"testpulse/internal/types"
)

//go:embed defaults/*.txt defaults/*.html
var defaultsFS embed.FS

var defaultSubjects = map[types.EventType]string{
	types.EventTestCompletion: "Test {{testCaseId}} finished: {{result}}",
	types.EventTestFailure:    "Test {{testCaseId}} failed",
	types.EventCriticalAlert:  "Critical alert: {{alertType}}",
}

// Repository is the persistence contract for templates.
type Repository interface {
	FindByEventTypeChannel(ctx context.Context, eventType types.EventType, channel types.ChannelType) (*types.NotificationTemplate, error)
	Get(ctx context.Context, templateID string) (*types.NotificationTemplate, error)
	Create(ctx context.Context, tmpl *types.NotificationTemplate) error
	Replace(ctx context.Context, tmpl *types.NotificationTemplate) error
	Delete(ctx context.Context, templateID string) error
}

var _ Repository = (*store.TemplateRepository)(nil)

// Service validates templates before they reach the Repository.
type Service struct {
	repo   Repository
	clock  types.Clock
	logger types.Logger
}

func NewService(repo Repository, clock types.Clock, logger types.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Service{repo: repo, clock: clock, logger: logger}
}

// GetTemplate returns the stored template for the pair, or nil.
func (s *Service) GetTemplate(ctx context.Context, eventType types.EventType, channel types.ChannelType) (*types.NotificationTemplate, error) {
	return s.repo.FindByEventTypeChannel(ctx, eventType, channel)
}

// GetTemplateByID returns a not_found AppError when the ID is unknown.
func (s *Service) GetTemplateByID(ctx context.Context, templateID string) (*types.NotificationTemplate, error) {
	tmpl, err := s.repo.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	return tmpl, nil
}

// Resolve returns the stored template for the pair, falling back to the
// built-in default. Lookup errors are logged and also fall back.
func (s *Service) Resolve(ctx context.Context, eventType types.EventType, channel types.ChannelType) *types.NotificationTemplate {
	tmpl, err := s.GetTemplate(ctx, eventType, channel)
	if err != nil {
		s.logger.Warn("template lookup failed, using default",
			"event_type", string(eventType),
			"channel", string(channel),
			"error", err,
		)
	}
	if tmpl != nil {
		return tmpl
	}
	return Default(eventType, channel)
}

// Default returns the embedded template for an event type. Email gets the
// HTML variant; every other channel gets plain text.
func Default(eventType types.EventType, channel types.ChannelType) *types.NotificationTemplate {
	format := types.FormatText
	ext := "txt"
	if channel == types.ChannelEmail {
		format, ext = types.FormatHTML, "html"
	}
	body, err := defaultsFS.ReadFile(fmt.Sprintf("defaults/%s.%s", eventType, ext))
	if err != nil {
		body = []byte("{{message}}")
	}
	return &types.NotificationTemplate{
		TemplateID: "default-" + string(eventType),
		EventType:  eventType,
		Channel:    channel,
		Format:     format,
		Subject:    defaultSubjects[eventType],
		Body:       string(body),
	}
}

// CreateTemplate validates and stores a new template. A missing ID is
// generated. Nothing is written when validation fails.
func (s *Service) CreateTemplate(ctx context.Context, tmpl *types.NotificationTemplate) (*types.NotificationTemplate, error) {
	if err := ValidateTemplate(tmpl); err != nil {
		return nil, err
	}
	if !tmpl.EventType.Valid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidTemplate,
			"unknown event type", nil, map[string]any{"eventType": string(tmpl.EventType)})
	}

	out := *tmpl
	if out.TemplateID == "" {
		out.TemplateID = uuid.NewString()
	}
	now := s.clock.Now()
	out.CreatedAt = now
	out.UpdatedAt = now

	if err := s.repo.Create(ctx, &out); err != nil {
		return nil, err
	}
	s.logger.Info("template created",
		"template_id", out.TemplateID,
		"event_type", string(out.EventType),
		"channel", string(out.Channel),
	)
	return &out, nil
}

// UpdateTemplate applies upd to an existing template. The merged result is
// re-validated when the update touches body, channel or format.
func (s *Service) UpdateTemplate(ctx context.Context, templateID string, upd types.TemplateUpdate) (*types.NotificationTemplate, error) {
	current, err := s.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	next := *current
	if upd.Channel != nil {
		next.Channel = *upd.Channel
	}
	if upd.Format != nil {
		next.Format = *upd.Format
	}
	if upd.Subject != nil {
		next.Subject = *upd.Subject
	}
	if upd.Body != nil {
		next.Body = *upd.Body
	}

	if upd.TouchesContent() {
		if err := ValidateTemplate(&next); err != nil {
			return nil, err
		}
	}
	next.UpdatedAt = s.clock.Now()

	if err := s.repo.Replace(ctx, &next); err != nil {
		return nil, err
	}
	s.logger.Info("template updated", "template_id", templateID)
	return &next, nil
}

// DeleteTemplate removes a template. Deleting an unknown ID succeeds.
func (s *Service) DeleteTemplate(ctx context.Context, templateID string) error {
	if err := s.repo.Delete(ctx, templateID); err != nil {
		return err
	}
	s.logger.Info("template deleted", "template_id", templateID)
	return nil
}
