package notifications

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type staffLister interface {
	ListStaff(ctx context.Context, roles []string) ([]models.User, error)
}

// Notifier sends notifications whose failure must never affect the ledger.
type Notifier struct {
	gateway    Gateway
	staff      staffLister
	staffRoles []string
	logg       *logger.Logger
}

func NewNotifier(gateway Gateway, staff staffLister, staffRoles []string, logg *logger.Logger) *Notifier {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Notifier{gateway: gateway, staff: staff, staffRoles: staffRoles, logg: logg}
}

// BestEffort runs fn and logs its failure under label. It never returns an error
// and recovers panics raised by fn.
func (n *Notifier) BestEffort(ctx context.Context, label string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			n.logg.Error(n.logg.WithField(ctx, "notification", label), "notification.panic", fmt.Errorf("%v", r))
		}
	}()
	if err := fn(ctx); err != nil {
		n.logg.Error(n.logg.WithField(ctx, "notification", label), "notification.failed", err)
	}
}

// Notify sends msg on a best-effort basis.
func (n *Notifier) Notify(ctx context.Context, msg Message) {
	n.BestEffort(ctx, string(msg.Kind), func(ctx context.Context) error {
		return n.send(ctx, msg)
	})
}

// NotifyStaff fans msg out to every active staff member. Per-recipient
// failures are combined; one failure does not stop the others.
func (n *Notifier) NotifyStaff(ctx context.Context, msg Message) error {
	if n.staff == nil {
		return nil
	}
	staff, err := n.staff.ListStaff(ctx, n.staffRoles)
	if err != nil {
		return fmt.Errorf("list staff: %w", err)
	}
	var errs error
	for _, member := range staff {
		out := msg
		out.Recipient = member.Email
		errs = multierr.Append(errs, n.send(ctx, out))
	}
	return errs
}

// NotifyStaffBestEffort is NotifyStaff with failures logged and swallowed.
func (n *Notifier) NotifyStaffBestEffort(ctx context.Context, msg Message) {
	n.BestEffort(ctx, string(msg.Kind), func(ctx context.Context) error {
		return n.NotifyStaff(ctx, msg)
	})
}

func (n *Notifier) send(ctx context.Context, msg Message) error {
	if n.gateway == nil {
		return nil
	}
	if msg.Priority == "" {
		msg.Priority = enums.NotificationPriorityNormal
	}
	return n.gateway.Send(ctx, msg)
}
