package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ferryline/ferryline-api/internal/models"
	"github.com/ferryline/ferryline-api/internal/repository"
)

// Dispatcher turns detected status transitions into emails, gated by the
// user's notification preferences. Delivery is best-effort: every failure
// is logged and swallowed, never surfaced to the synchronization tick.
type Dispatcher struct {
	prefs  repository.PreferenceRepository
	users  repository.UserRepository
	mailer Mailer
	logger zerolog.Logger
}

func NewDispatcher(prefs repository.PreferenceRepository, users repository.UserRepository, mailer Mailer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		prefs:  prefs,
		users:  users,
		mailer: mailer,
		logger: logger.With().Str("component", "notification_dispatcher").Logger(),
	}
}

// HandleTransition implements sync.TransitionHandler.
func (d *Dispatcher) HandleTransition(ctx context.Context, userID string, transition models.Reconciled) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load user for notification")
		return
	}

	pref, err := d.prefs.GetForJob(ctx, userID, user.Email, transition.JobID)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Str("job_id", transition.JobID).Msg("failed to load notification preference")
		return
	}
	if !pref.Allows(transition.New) {
		return
	}

	subject, html := composeEmail(transition)

	// One failed recipient must not block the others; ctx bounds every
	// send so a hung server cannot stall the calling tick.
	var g errgroup.Group
	for _, recipient := range pref.RecipientEmails {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" {
			continue
		}
		recipient := recipient
		g.Go(func() error {
			if err := d.mailer.Send(ctx, recipient, subject, html); err != nil {
				d.logger.Warn().Err(err).Str("recipient", recipient).Str("job_id", transition.JobID).Msg("failed to send notification email")
			}
			return nil
		})
	}
	g.Wait()
}

func composeEmail(t models.Reconciled) (subject, html string) {
	name := t.Record.Name
	if name == "" {
		name = t.JobID
	}

	switch t.New {
	case models.StatusInProgress:
		subject = fmt.Sprintf("Transfer started: %s", name)
	case models.StatusCompleted:
		subject = fmt.Sprintf("Transfer completed: %s", name)
	case models.StatusError:
		subject = fmt.Sprintf("Transfer failed: %s", name)
	default:
		subject = fmt.Sprintf("Transfer update: %s", name)
	}

	body := strings.Builder{}
	body.WriteString("<html><body>")
	body.WriteString(fmt.Sprintf("<h2>%s</h2>", subject))
	body.WriteString(fmt.Sprintf("<p>Job <strong>%s</strong> changed from %s to <strong>%s</strong>.</p>", name, t.Previous, t.New))
	if t.Record.Source != "" || t.Record.Destination != "" {
		body.WriteString(fmt.Sprintf("<p>%s &rarr; %s</p>", t.Record.Source, t.Record.Destination))
	}
	if t.New == models.StatusCompleted && t.Record.TotalFiles > 0 {
		body.WriteString(fmt.Sprintf("<p>%d files (%d bytes) transferred.</p>", t.Record.TotalFiles, t.Record.TotalBytes))
	}
	body.WriteString("</body></html>")
	return subject, body.String()
}
