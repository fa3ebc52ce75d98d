package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/webcompat/ochazuke/internal/models"
)

// Store is the subset of the database the webhook processor writes to.
type Store interface {
	AddIssue(ctx context.Context, issue models.Issue) error
	UpdateIssueTitle(ctx context.Context, id int, title string) error
	SetIssueState(ctx context.Context, id int, isOpen bool) error
	SetIssueMilestone(ctx context.Context, id int, milestoneID *int) error
	AddIssueLabel(ctx context.Context, issueID int, labelName string) error
	RemoveIssueLabel(ctx context.Context, issueID int, labelName string) error
	AddIssueEvent(ctx context.Context, event models.IssueEvent) error
	MilestoneByTitle(ctx context.Context, title string) (models.Milestone, error)
	CreateMilestone(ctx context.Context, title string) error
	RenameMilestone(ctx context.Context, oldTitle, newTitle string) error
	DeleteMilestone(ctx context.Context, title string) error
	CreateLabel(ctx context.Context, name string) error
	RenameLabel(ctx context.Context, oldName, newName string) error
	DeleteLabel(ctx context.Context, name string) error
}

// Processor applies validated webhook deliveries to the store.
type Processor struct {
	db Store
}

// NewProcessor creates a webhook processor writing to the given store.
func NewProcessor(db Store) *Processor {
	return &Processor{db: db}
}

// ProcessIssueEvent applies one extracted issues event.
//
// The event row is recorded even when applying the state change fails, so a
// partially applied delivery still leaves a trace.
func (p *Processor) ProcessIssueEvent(ctx context.Context, event IssueEvent) error {
	var err error
	switch event.Action {
	case "opened":
		err = p.addIssue(ctx, event)
	case "edited":
		err = p.db.UpdateIssueTitle(ctx, event.IssueID, event.Title)
	case "closed":
		err = p.db.SetIssueState(ctx, event.IssueID, false)
	case "reopened":
		err = p.db.SetIssueState(ctx, event.IssueID, true)
	case "milestoned":
		err = p.setMilestone(ctx, event)
	case "demilestoned":
		err = p.db.SetIssueMilestone(ctx, event.IssueID, nil)
	case "labeled", "unlabeled":
		err = p.changeLabel(ctx, event)
	default:
		return fmt.Errorf("unhandled issues action %q", event.Action)
	}

	if recordErr := p.db.AddIssueEvent(ctx, models.IssueEvent{
		IssueID:    event.IssueID,
		Actor:      event.Actor,
		Action:     event.Action,
		Details:    event.Details,
		ReceivedAt: event.ReceivedAt,
	}); recordErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to record event: %v", recordErr))
	}

	if err != nil {
		return fmt.Errorf("issue #%d %s: %w", event.IssueID, event.Action, err)
	}

	slog.Info("Processed issue event", "issue", event.IssueID, "action", event.Action, "actor", event.Actor)
	return nil
}

func (p *Processor) addIssue(ctx context.Context, event IssueEvent) error {
	issue := models.Issue{
		ID:        event.IssueID,
		Title:     event.Title,
		CreatedAt: event.CreatedAt,
		IsOpen:    true,
	}

	if event.MilestoneTitle != "" {
		milestone, err := p.db.MilestoneByTitle(ctx, event.MilestoneTitle)
		if err != nil {
			// The issue is still worth storing without its milestone.
			slog.Warn("Unknown milestone on new issue", "issue", event.IssueID, "milestone", event.MilestoneTitle, "err", err)
		} else {
			issue.MilestoneID = &milestone.ID
		}
	}

	return p.db.AddIssue(ctx, issue)
}

func (p *Processor) setMilestone(ctx context.Context, event IssueEvent) error {
	milestone, err := p.db.MilestoneByTitle(ctx, event.MilestoneTitle)
	if err != nil {
		return fmt.Errorf("failed to resolve milestone %q: %w", event.MilestoneTitle, err)
	}
	return p.db.SetIssueMilestone(ctx, event.IssueID, &milestone.ID)
}

func (p *Processor) changeLabel(ctx context.Context, event IssueEvent) error {
	name, err := event.LabelName()
	if err != nil {
		return err
	}
	if event.Action == "labeled" {
		return p.db.AddIssueLabel(ctx, event.IssueID, name)
	}
	return p.db.RemoveIssueLabel(ctx, event.IssueID, name)
}

// ProcessLabelEvent applies a label delivery: created, renamed, or deleted.
// Other label edits (color changes) are ignored.
func (p *Processor) ProcessLabelEvent(ctx context.Context, payload LabelPayload) error {
	name := payload.Label.Name

	switch payload.Action {
	case "created":
		if err := p.db.CreateLabel(ctx, name); err != nil {
			return fmt.Errorf("failed to create label %q: %w", name, err)
		}
	case "edited":
		if payload.Changes == nil || payload.Changes.Name == nil {
			slog.Debug("Ignoring label edit without name change", "label", name)
			return nil
		}
		if err := p.db.RenameLabel(ctx, payload.Changes.Name.From, name); err != nil {
			return fmt.Errorf("failed to rename label %q: %w", payload.Changes.Name.From, err)
		}
	case "deleted":
		if err := p.db.DeleteLabel(ctx, name); err != nil {
			return fmt.Errorf("failed to delete label %q: %w", name, err)
		}
	default:
		return fmt.Errorf("unhandled label action %q", payload.Action)
	}

	slog.Info("Processed label event", "label", name, "action", payload.Action)
	return nil
}

// ProcessMilestoneEvent applies a milestone delivery: created, retitled, or
// deleted. Other milestone edits (descriptions, due dates) are ignored.
func (p *Processor) ProcessMilestoneEvent(ctx context.Context, payload MilestonePayload) error {
	title := payload.Milestone.Title

	switch payload.Action {
	case "created":
		if err := p.db.CreateMilestone(ctx, title); err != nil {
			return fmt.Errorf("failed to create milestone %q: %w", title, err)
		}
	case "edited":
		if payload.Changes == nil || payload.Changes.Title == nil {
			slog.Debug("Ignoring milestone edit without title change", "milestone", title)
			return nil
		}
		if err := p.db.RenameMilestone(ctx, payload.Changes.Title.From, title); err != nil {
			return fmt.Errorf("failed to rename milestone %q: %w", payload.Changes.Title.From, err)
		}
	case "deleted":
		if err := p.db.DeleteMilestone(ctx, title); err != nil {
			return fmt.Errorf("failed to delete milestone %q: %w", title, err)
		}
	default:
		return fmt.Errorf("unhandled milestone action %q", payload.Action)
	}

	slog.Info("Processed milestone event", "milestone", title, "action", payload.Action)
	return nil
}
