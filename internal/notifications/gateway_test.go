package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type stubResult struct{ err error }

func (r stubResult) Get(context.Context) (string, error) { return "msg-1", r.err }

type stubPublisher struct {
	msgs []*gcppubsub.Message
	err  error
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return stubResult{err: p.err}
}

func TestPubSubGatewayPublishesJSON(t *testing.T) {
	pub := &stubPublisher{}
	gw := &PubSubGateway{pub: pub, timeout: defaultPublishTimeout}

	err := gw.Send(context.Background(), Message{
		Kind:      enums.NotificationStorageOverQuota,
		Priority:  enums.NotificationPriorityHigh,
		Recipient: "c@x.io",
		Data:      map[string]any{"limit_bytes": 5},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one published message")
	}
	if pub.msgs[0].Attributes["priority"] != "high" {
		t.Fatalf("unexpected attributes %v", pub.msgs[0].Attributes)
	}
	var decoded Message
	if err := json.Unmarshal(pub.msgs[0].Data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != enums.NotificationStorageOverQuota || decoded.CreatedAt.IsZero() {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPubSubGatewayRejectsUnknownKindAndPropagatesErrors(t *testing.T) {
	gw := &PubSubGateway{pub: &stubPublisher{err: errors.New("unavailable")}, timeout: defaultPublishTimeout}
	if err := gw.Send(context.Background(), Message{Kind: "bogus"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if err := gw.Send(context.Background(), Message{Kind: enums.NotificationWelcome}); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestLogGatewayNeverFails(t *testing.T) {
	if err := NewLogGateway(logger.Nop()).Send(context.Background(), Message{Kind: enums.NotificationWelcome}); err != nil {
		t.Fatalf("log gateway: %v", err)
	}
}
