package mail

import (
	"context"

	"stackpad.org/internal/account"
	"stackpad.org/internal/tasks"
)

// Notifier adapts the mailer to the account service's notification
// hooks. Each notification becomes one background task; a full queue
// drops the mail rather than failing the request.
type Notifier struct {
	mailer    Mailer
	templates *Templates
	queue     *tasks.Queue
}

var _ account.Notifier = (*Notifier)(nil)

func NewNotifier(mailer Mailer, templates *Templates, queue *tasks.Queue) *Notifier {
	return &Notifier{mailer: mailer, templates: templates, queue: queue}
}

func (n *Notifier) deliver(name string, msg Message, err error) error {
	if err != nil {
		return err
	}
	err = n.queue.Enqueue(name, func(ctx context.Context) error {
		return n.mailer.Send(ctx, msg)
	})
	if err == tasks.ErrQueueFull {
		// Mail is best effort; the recovery and verification flows can
		// be retried by the user.
		return nil
	}
	return err
}

func (n *Notifier) PasswordRecovery(ctx context.Context, email, token string) error {
	msg, err := n.templates.PasswordRecovery(email, token)
	return n.deliver("mail.password_recovery", msg, err)
}

func (n *Notifier) AccountCreated(ctx context.Context, email, password string) error {
	msg, err := n.templates.AccountCreated(email, password)
	return n.deliver("mail.account_created", msg, err)
}

func (n *Notifier) VerificationRequested(ctx context.Context, email, token string) error {
	msg, err := n.templates.EmailVerification(email, token)
	return n.deliver("mail.verification", msg, err)
}
