// Package handlers contains the HTTP handlers of the template API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"testpulse/internal/core"
	"testpulse/internal/templates"
	"testpulse/internal/types"
)

// TemplateService is the template authoring contract the handler depends on.
type TemplateService interface {
	GetTemplate(ctx context.Context, eventType types.EventType, channel types.ChannelType) (*types.NotificationTemplate, error)
	GetTemplateByID(ctx context.Context, templateID string) (*types.NotificationTemplate, error)
	CreateTemplate(ctx context.Context, tmpl *types.NotificationTemplate) (*types.NotificationTemplate, error)
	UpdateTemplate(ctx context.Context, templateID string, upd types.TemplateUpdate) (*types.NotificationTemplate, error)
	DeleteTemplate(ctx context.Context, templateID string) error
}

var _ TemplateService = (*templates.Service)(nil)

// CreateTemplateRequest is the body of POST /v1/templates.
type CreateTemplateRequest struct {
	TemplateID string               `json:"templateId,omitempty" validate:"omitempty,max=64"`
	EventType  types.EventType      `json:"eventType" validate:"required,oneof=test_completion test_failure critical_alert"`
	Channel    types.ChannelType    `json:"channel" validate:"required,oneof=email sms slack webhook"`
	Format     types.TemplateFormat `json:"format" validate:"required,oneof=html text slack_blocks"`
	Subject    string               `json:"subject,omitempty" validate:"max=200"`
	Body       string               `json:"body" validate:"required"`
}

// PreviewRequest renders either a stored template (TemplateID) or an unsaved
// draft (Template) with sample variables.
type PreviewRequest struct {
	TemplateID string                      `json:"templateId,omitempty"`
	Template   *types.NotificationTemplate `json:"template,omitempty" validate:"required_without=TemplateID"`
	Variables  map[string]any              `json:"variables,omitempty"`
}

// PreviewResponse is the rendered draft plus the variables it references.
type PreviewResponse struct {
	Subject   string   `json:"subject,omitempty"`
	Body      string   `json:"body"`
	Variables []string `json:"variables"`
	Missing   []string `json:"missing,omitempty"`
}

type TemplateHandler struct {
	service   TemplateService
	renderer  *templates.Renderer
	validator *core.Validator
	logger    *slog.Logger
}

func NewTemplateHandler(service TemplateService, v *core.Validator, l *slog.Logger) *TemplateHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator()
	}
	return &TemplateHandler{
		service:   service,
		renderer:  templates.NewRenderer(nil),
		validator: v,
		logger:    l,
	}
}

func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.Lookup)
		r.Post("/preview", h.Preview)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// Create handles POST /v1/templates. Validation failures are 400s and
// nothing is stored.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.service.CreateTemplate(r.Context(), &types.NotificationTemplate{
		TemplateID: req.TemplateID,
		EventType:  req.EventType,
		Channel:    req.Channel,
		Format:     req.Format,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: created})
}

// Lookup handles GET /v1/templates?eventType=&channel=. With fallback=true a
// missing template is answered with the built-in default.
func (h *TemplateHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	eventType := types.EventType(q.Get("eventType"))
	channel := types.ChannelType(q.Get("channel"))

	if !eventType.Valid() || !types.IsTemplateChannel(channel) {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"eventType and channel query parameters are required", nil,
			map[string]any{"eventType": string(eventType), "channel": string(channel)}))
		return
	}

	tmpl, err := h.service.GetTemplate(r.Context(), eventType, channel)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if tmpl == nil {
		if q.Get("fallback") != "true" {
			core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil))
			return
		}
		h.logger.InfoContext(r.Context(), "serving built-in template",
			"event_type", string(eventType),
			"channel", string(channel),
		)
		tmpl = templates.Default(eventType, channel)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tmpl})
}

// Get handles GET /v1/templates/{id}.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.service.GetTemplateByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tmpl})
}

// Update handles PATCH /v1/templates/{id}.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd types.TemplateUpdate
	if err := core.DecodeJSON(w, r, &upd); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(upd); err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.service.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// Delete handles DELETE /v1/templates/{id}.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles POST /v1/templates/preview. Missing variables render empty
// and are listed in the response.
func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tmpl := req.Template
	if req.TemplateID != "" {
		stored, err := h.service.GetTemplateByID(r.Context(), req.TemplateID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		tmpl = stored
	} else if err := templates.ValidateTemplate(tmpl); err != nil {
		core.Error(w, r, err)
		return
	}

	vars := append([]string{}, templates.Variables(tmpl.Body)...)
	for _, v := range templates.Variables(tmpl.Subject) {
		if !slices.Contains(vars, v) {
			vars = append(vars, v)
		}
	}
	var missing []string
	for _, v := range vars {
		if _, ok := req.Variables[v]; !ok {
			missing = append(missing, v)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PreviewResponse{
		Subject:   h.renderer.RenderSubject(tmpl, req.Variables),
		Body:      h.renderer.Render(tmpl, req.Variables),
		Variables: vars,
		Missing:   missing,
	}})
}
