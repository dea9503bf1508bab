package notifications

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type recordingGateway struct {
	sent    []Message
	failFor map[string]bool
}

func (g *recordingGateway) Send(_ context.Context, msg Message) error {
	if g.failFor[msg.Recipient] {
		return errors.New("smtp down for " + msg.Recipient)
	}
	g.sent = append(g.sent, msg)
	return nil
}

type stubStaff struct {
	users []models.User
	roles []string
	err   error
}

func (s *stubStaff) ListStaff(_ context.Context, roles []string) ([]models.User, error) {
	s.roles = roles
	return s.users, s.err
}

func TestBestEffortSwallowsErrorsAndPanics(t *testing.T) {
	n := NewNotifier(&recordingGateway{}, nil, nil, logger.Nop())
	ctx := context.Background()

	n.BestEffort(ctx, "welcome", func(context.Context) error { return errors.New("boom") })
	n.BestEffort(ctx, "welcome", func(context.Context) error { panic("bad template") })
}

func TestNotifyDefaultsPriority(t *testing.T) {
	gw := &recordingGateway{}
	n := NewNotifier(gw, nil, nil, nil)
	n.Notify(context.Background(), Message{Kind: enums.NotificationPaymentSuccess, Recipient: "c@x.io"})

	if len(gw.sent) != 1 || gw.sent[0].Priority != enums.NotificationPriorityNormal {
		t.Fatalf("unexpected sent messages %+v", gw.sent)
	}
}

func TestNotifyStaffContinuesAfterFailure(t *testing.T) {
	gw := &recordingGateway{failFor: map[string]bool{"a@x.io": true}}
	staff := &stubStaff{users: []models.User{{Email: "a@x.io"}, {Email: "b@x.io"}, {Email: "c@x.io"}}}
	n := NewNotifier(gw, staff, []string{"admin", "super_admin"}, logger.Nop())

	err := n.NotifyStaff(context.Background(), Message{Kind: enums.NotificationStaffPaymentFailed})
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected one recipient failure, got %d", got)
	}
	if len(gw.sent) != 2 {
		t.Fatalf("expected remaining staff notified, got %d", len(gw.sent))
	}
	if len(staff.roles) != 2 {
		t.Fatalf("expected staff roles forwarded, got %v", staff.roles)
	}
}

func TestNotifyStaffListError(t *testing.T) {
	n := NewNotifier(&recordingGateway{}, &stubStaff{err: errors.New("db down")}, []string{"admin"}, logger.Nop())
	if err := n.NotifyStaff(context.Background(), Message{Kind: enums.NotificationStaffPaymentFailed}); err == nil {
		t.Fatalf("expected list error")
	}
}
