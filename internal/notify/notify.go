// Package notify posts a short summary to chat webhooks when a migration
// run completes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
	"github.com/zulandar/codem/internal/config"
	"github.com/zulandar/codem/internal/models"
)

// Notifier is told about every committed run.
type Notifier interface {
	RunCompleted(ctx context.Context, project models.Project, run models.Run) error
}

// Message renders the one-line run summary.
func Message(project models.Project, run models.Run) string {
	s := run.Stats
	return fmt.Sprintf("Codem run %s for %s (%s) %s: %d files (%d migrated, %d pending, %d manual)",
		run.ID, project.Name, run.Scope, run.Status, s.TotalFiles, s.Migrated, s.Pending, s.Manual)
}

// FromConfig builds a Notifier for every configured webhook. It returns nil
// when none is configured.
func FromConfig(cfg config.NotifyConfig) (Notifier, error) {
	var all Multi
	if cfg.SlackWebhookURL != "" {
		all = append(all, NewSlack(cfg.SlackWebhookURL, cfg.Timeout))
	}
	if cfg.DiscordWebhookID != "" {
		d, err := NewDiscord(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			return nil, err
		}
		all = append(all, d)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// RunCompleted notifies every member and joins their errors.
func (m Multi) RunCompleted(ctx context.Context, project models.Project, run models.Run) error {
	var errs []error
	for _, n := range m {
		if err := n.RunCompleted(ctx, project, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Slack posts to a Slack incoming webhook.
type Slack struct {
	url  string
	http *http.Client
}

// NewSlack returns a Slack notifier for the webhook URL. Each post is bounded
// by timeout.
func NewSlack(url string, timeout time.Duration) *Slack {
	return &Slack{url: url, http: &http.Client{Timeout: timeout}}
}

// RunCompleted posts the run summary.
func (s *Slack) RunCompleted(ctx context.Context, project models.Project, run models.Run) error {
	msg := &slack.WebhookMessage{Text: Message(project, run)}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.http, msg); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

// webhookExecutor abstracts the discordgo.Session method we use, enabling test mocks.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord executes a Discord webhook. Webhook calls need no bot token.
type Discord struct {
	exec  webhookExecutor
	id    string
	token string
}

// NewDiscord returns a Discord notifier for the webhook ID and token.
func NewDiscord(id, token string) (*Discord, error) {
	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &Discord{exec: sess, id: id, token: token}, nil
}

// RunCompleted posts the run summary.
func (d *Discord) RunCompleted(ctx context.Context, project models.Project, run models.Run) error {
	_, err := d.exec.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Username: "Codem",
		Content:  Message(project, run),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord: %w", err)
	}
	return nil
}
