package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/otel"
	"ely.by/changeskin/internal/protocol"
	"ely.by/changeskin/internal/utils"
)

type SkinUpdateHandler interface {
	// ApplySkin refreshes the skin of the online player. The skin is nil when it must be taken from the storage
	ApplySkin(ctx context.Context, playerName string, skin *db.Record) error
}

type PermissionChecker interface {
	CheckPermission(ctx context.Context, invoker uuid.UUID, receiver uuid.UUID, owner uuid.UUID, skinPerm bool) bool
}

func NewMessenger(
	transport Transport,
	server string,
	updates SkinUpdateHandler,
	permissions PermissionChecker,
) (*Messenger, error) {
	metrics, err := newMessengerMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Messenger{
		Transport:   transport,
		Server:      server,
		Updates:     updates,
		Permissions: permissions,
		pending:     make(map[int32]chan protocol.Message),
		metrics:     metrics,
	}, nil
}

// Messenger synchronizes the skin changes and the permission checks between the proxy and the backend servers
type Messenger struct {
	Transport   Transport
	Server      string
	Updates     SkinUpdateHandler
	Permissions PermissionChecker

	lastId  atomic.Int32
	mu      sync.Mutex
	pending map[int32]chan protocol.Message
	metrics *messengerMetrics
}

// Run consumes the inbound messages until the ctx is done
func (m *Messenger) Run(ctx context.Context) error {
	return m.Transport.Consume(ctx, m.handle)
}

// SendSkinUpdate asks the target server to refresh the player's skin. No response is expected
func (m *Messenger) SendSkinUpdate(ctx context.Context, target string, playerName string) error {
	return m.send(ctx, target, playerName, &protocol.UpdateSkin{PlayerName: playerName})
}

// CheckPermissions asks the target server whether the invoker may apply the skin to the receiver.
// It waits for exactly one response until the ctx is done. On success the skin echoed by the target is returned
func (m *Messenger) CheckPermissions(
	ctx context.Context,
	target string,
	invoker uuid.UUID,
	receiver uuid.UUID,
	skin *db.Record,
	skinPerm bool,
	op bool,
) (bool, *db.Record, error) {
	id := m.lastId.Add(1)
	responses := make(chan protocol.Message, 1)

	m.mu.Lock()
	m.pending[id] = responses
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	err := m.send(ctx, target, invoker.String(), &protocol.PermissionsCheck{
		Id:       id,
		Skin:     skin,
		Receiver: receiver,
		SkinPerm: skinPerm,
		Op:       op,
	})
	if err != nil {
		return false, nil, err
	}

	select {
	case <-ctx.Done():
		return false, nil, fmt.Errorf("no permissions response from %s: %w", target, ctx.Err())
	case response := <-responses:
		if success, ok := response.(*protocol.PermissionsSuccess); ok {
			return true, success.Skin, nil
		}

		return false, nil, nil
	}
}

func (m *Messenger) send(ctx context.Context, target string, invoker string, message protocol.Message) error {
	payload, err := protocol.Encode(message)
	if err != nil {
		return err
	}

	m.metrics.Sent.Add(ctx, 1, metric.WithAttributes(attribute.String("tag", message.Tag())))

	return m.Transport.Publish(ctx, target, &Envelope{
		Sender:  m.Server,
		Invoker: invoker,
		Payload: payload,
	})
}

func (m *Messenger) handle(ctx context.Context, envelope *Envelope) {
	message, err := protocol.Decode(envelope.Payload)
	if err != nil {
		m.metrics.Violations.Add(ctx, 1)
		slog.WarnContext(ctx, "Dropped malformed message", slog.String("sender", envelope.Sender), slog.Any("error", err))
		return
	}

	m.metrics.Received.Add(ctx, 1, metric.WithAttributes(attribute.String("tag", message.Tag())))

	switch msg := message.(type) {
	case *protocol.UpdateSkin:
		m.handleUpdateSkin(ctx, envelope, msg)
	case *protocol.PermissionsCheck:
		m.handlePermissionsCheck(ctx, envelope, msg)
	case *protocol.PermissionsSuccess:
		m.resolvePending(ctx, msg.Id, msg)
	case *protocol.PermissionsFailure:
		m.resolvePending(ctx, msg.Id, msg)
	}
}

func (m *Messenger) handleUpdateSkin(ctx context.Context, envelope *Envelope, msg *protocol.UpdateSkin) {
	playerName := msg.PlayerName
	if playerName == "" {
		// Legacy senders address the player the message was sent through
		playerName = envelope.Invoker
	}

	if playerName == "" {
		slog.WarnContext(ctx, "Received skin update without a player", slog.String("sender", envelope.Sender))
		return
	}

	// The reset has already been persisted by the sender, so it's enough to reload the skin
	err := m.Updates.ApplySkin(ctx, playerName, msg.Skin)
	if err != nil {
		slog.ErrorContext(ctx, "Unable to apply the skin update", slog.String("player", playerName), slog.Any("error", err))
	}
}

func (m *Messenger) handlePermissionsCheck(ctx context.Context, envelope *Envelope, msg *protocol.PermissionsCheck) {
	allowed := msg.Op
	if !allowed {
		invoker, err := utils.ParseUuid(envelope.Invoker)
		if err != nil {
			slog.WarnContext(ctx, "Received permissions check with invalid invoker", slog.String("invoker", envelope.Invoker))
		} else {
			allowed = m.Permissions.CheckPermission(ctx, invoker, msg.Receiver, msg.Skin.ProfileId(), msg.SkinPerm)
		}
	}

	var response protocol.Message
	if allowed {
		response = &protocol.PermissionsSuccess{Id: msg.Id, Skin: msg.Skin, Receiver: msg.Receiver}
	} else {
		response = &protocol.PermissionsFailure{Id: msg.Id}
	}

	err := m.send(ctx, envelope.Sender, envelope.Invoker, response)
	if err != nil {
		slog.ErrorContext(ctx, "Unable to send the permissions response", slog.String("target", envelope.Sender), slog.Any("error", err))
	}
}

func (m *Messenger) resolvePending(ctx context.Context, id int32, response protocol.Message) {
	m.mu.Lock()
	responses, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()

	if !ok {
		slog.DebugContext(ctx, "Received a response for an unknown request", slog.Int("id", int(id)))
		return
	}

	// The channel is buffered and the entry has been removed, so only a single response can be written
	responses <- response
}

func newMessengerMetrics(meter metric.Meter) (*messengerMetrics, error) {
	m := &messengerMetrics{}
	var errors, err error

	m.Sent, err = meter.Int64Counter(
		"messages.sent",
		metric.WithDescription("Number of messages sent to other servers"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.Received, err = meter.Int64Counter(
		"messages.received",
		metric.WithDescription("Number of valid messages received from other servers"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.Violations, err = meter.Int64Counter(
		"messages.violations",
		metric.WithDescription("Number of malformed messages dropped"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	return m, errors
}

type messengerMetrics struct {
	Sent       metric.Int64Counter
	Received   metric.Int64Counter
	Violations metric.Int64Counter
}
