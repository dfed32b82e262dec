package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creatory/creatory/internal/catalog"
	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/repository"
)

// Bootstrapper seeds a workspace with the director agent and the starter
// template. Running it again changes nothing.
type Bootstrapper struct {
	agents    repository.AgentRepository
	templates repository.TemplateRepository
	catalog   *catalog.Catalog
}

// NewBootstrapper returns a Bootstrapper drawing templates from cat. A nil
// catalog seeds only the agent.
func NewBootstrapper(agents repository.AgentRepository, templates repository.TemplateRepository, cat *catalog.Catalog) *Bootstrapper {
	return &Bootstrapper{agents: agents, templates: templates, catalog: cat}
}

// Bootstrap adds whatever defaults ws is missing.
func (b *Bootstrapper) Bootstrap(ctx context.Context, ws *creatory.Workspace) error {
	if err := b.ensureDirector(ctx, ws); err != nil {
		return err
	}
	return b.ensureStarterTemplate(ctx, ws)
}

func (b *Bootstrapper) ensureDirector(ctx context.Context, ws *creatory.Workspace) error {
	_, err := b.agents.FindAgentBySlug(ctx, ws.ID, catalog.DirectorAgentSlug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, creatory.ErrNotFound) {
		return fmt.Errorf("find director agent: %w", err)
	}

	agent := catalog.DirectorAgent(ws.ID)
	agent.ID = creatory.NewID()
	agent.CreatedAt = time.Now().UTC()
	if err := b.agents.CreateAgent(ctx, &agent); err != nil && !errors.Is(err, creatory.ErrConflict) {
		return fmt.Errorf("create director agent: %w", err)
	}
	return nil
}

func (b *Bootstrapper) ensureStarterTemplate(ctx context.Context, ws *creatory.Workspace) error {
	if b.catalog == nil {
		return nil
	}
	tmpl, ok := b.catalog.Template(catalog.StarterTemplate)
	if !ok {
		slog.Warn("starter template missing from catalog", "file", catalog.StarterTemplate)
		return nil
	}

	_, err := b.templates.FindTemplate(ctx, ws.ID, tmpl.Name, tmpl.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, creatory.ErrNotFound) {
		return fmt.Errorf("find starter template: %w", err)
	}

	tmpl.WorkspaceID = ws.ID
	tmpl.CreatedBy = ws.OwnerID
	prepareTemplate(&tmpl, time.Now().UTC())
	if err := b.templates.CreateTemplate(ctx, &tmpl); err != nil && !errors.Is(err, creatory.ErrConflict) {
		return fmt.Errorf("create starter template: %w", err)
	}
	return nil
}
