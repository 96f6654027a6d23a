package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Record(ctx context.Context, e domain.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  map[string][]domain.Notification
	block chan struct{}
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, n domain.Notification) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]domain.Notification)
	}
	r.sent[userID] = append(r.sent[userID], n)
	return nil
}

type handlerFunc func(ctx context.Context, e domain.Event) error

func (f handlerFunc) Handle(ctx context.Context, e domain.Event) error { return f(ctx, e) }

func TestDispatcher_DeliversEventsAndNotifications(t *testing.T) {
	audit := new(mockAudit)
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.Event) bool {
		return e.Type == domain.EventSeatAssigned && e.MemberID == "alice"
	})).Return(nil).Once()

	var handled []domain.EventType
	var mu sync.Mutex
	notifier := &recordingNotifier{}

	d := NewDispatcher(10, zap.NewNop())
	d.AddAudit(audit)
	d.AddNotifier(notifier)
	d.AddHandler(handlerFunc(func(_ context.Context, e domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, e.Type)
		return nil
	}))
	d.Start(2)

	event := domain.NewEvent(domain.EventSeatAssigned, "lic-1", "admin", time.Now())
	event.MemberID = "alice"
	require.NoError(t, d.Record(context.Background(), event))
	require.NoError(t, d.Notify(context.Background(), "alice", domain.Notification{Kind: domain.NotifySeatAssigned}))

	d.Close()

	audit.AssertExpectations(t)
	assert.Equal(t, []domain.EventType{domain.EventSeatAssigned}, handled)
	assert.Len(t, notifier.sent["alice"], 1)
}

func TestDispatcher_BackendFailureDoesNotStopDelivery(t *testing.T) {
	failing := new(mockAudit)
	failing.On("Record", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	healthy := new(mockAudit)
	healthy.On("Record", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(10, zap.NewNop())
	d.AddAudit(failing)
	d.AddAudit(healthy)
	d.Start(1)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Record(context.Background(), domain.NewEvent(domain.EventStatusChanged, "A1", "bob", time.Now())))
	}
	d.Close()

	failing.AssertNumberOfCalls(t, "Record", 3)
	healthy.AssertNumberOfCalls(t, "Record", 3)
}

func TestDispatcher_QueueFullDoesNotBlock(t *testing.T) {
	notifier := &recordingNotifier{block: make(chan struct{})}

	d := NewDispatcher(1, zap.NewNop())
	d.AddNotifier(notifier)

	// No workers yet: the single slot fills and the next call must fail fast.
	require.NoError(t, d.Notify(context.Background(), "u1", domain.Notification{}))
	err := d.Notify(context.Background(), "u2", domain.Notification{})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(notifier.block)
	d.Start(1)
	d.Close()
	assert.Len(t, notifier.sent["u1"], 1)
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(1, zap.NewNop())
	d.Start(1)
	d.Close()
	d.Close()

	err := d.Record(context.Background(), domain.NewEvent(domain.EventStatusChanged, "A1", "bob", time.Now()))
	assert.ErrorIs(t, err, ErrClosed)
}
