package defs

import (
	"strings"

	"github.com/gantryci/gantry/pkg/models"
)

// Pipeline converts a definition into the stored pipeline model. The
// definition is validated first; identifiers for the pipeline and its
// steps are assigned by the service layer on create.
func (d *Def) Pipeline() (*models.Pipeline, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	slug := d.Slug
	if slug == "" {
		slug = Slugify(d.Name)
	}

	defaultBranch := d.Repository.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	steps := make([]*models.Step, 0, len(d.Steps))
	for _, step := range d.Steps {
		steps = append(steps, &models.Step{
			UID:           stepUID(step),
			Name:          step.Name,
			ActionID:      step.Action,
			Configuration: step.With,
			Enabled:       true,
		})
	}

	return &models.Pipeline{
		Name:        d.Name,
		Slug:        slug,
		Description: d.Description,
		Status:      models.PipelineStatusActive,
		Repository: models.Repository{
			URL:           d.Repository.URL,
			DefaultBranch: defaultBranch,
		},
		Triggers: d.triggers(),
		Matrix: models.Matrix{
			FailFast: d.Matrix.FailFast,
			Axes:     d.Matrix.Axes,
		},
		Steps: steps,
		Env:   d.Env,
	}, nil
}

// triggers expands the "on:" block into trigger models. Identifiers are
// derived from the kind so reloading a definition file keeps them stable.
func (d *Def) triggers() []*models.Trigger {
	var triggers []*models.Trigger

	if d.On.Push != nil {
		triggers = append(triggers, &models.Trigger{
			ID:       string(models.TriggerKindPush),
			Kind:     models.TriggerKindPush,
			Branches: d.On.Push.Branches,
		})
	}

	if d.On.PullRequest != nil {
		triggers = append(triggers, &models.Trigger{
			ID:      string(models.TriggerKindPullRequest),
			Kind:    models.TriggerKindPullRequest,
			Actions: d.On.PullRequest.Actions,
		})
	}

	if d.On.Schedule != nil {
		triggers = append(triggers, &models.Trigger{
			ID:   string(models.TriggerKindSchedule),
			Kind: models.TriggerKindSchedule,
			Cron: d.On.Schedule.Cron,
		})
	}

	if d.On.Manual != nil {
		triggers = append(triggers, &models.Trigger{
			ID:   string(models.TriggerKindManual),
			Kind: models.TriggerKindManual,
		})
	}

	return triggers
}

func stepUID(step StepDef) string {
	if step.UID != "" {
		return step.UID
	}

	if step.Action != "" {
		return step.Action
	}

	return Slugify(step.Name)
}

// Slugify lowers a name into a URL-safe slug.
func Slugify(name string) string {
	var b strings.Builder

	lastDash := true

	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)

			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
			}

			lastDash = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
