package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-field/internal/delivery"
	"github.com/odyssey-erp/odyssey-field/internal/inventory"
	"github.com/odyssey-erp/odyssey-field/internal/reporting"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

type stubDeliveries struct {
	delivery *delivery.Delivery
	order    *delivery.Order
}

func (s *stubDeliveries) GetDelivery(_ context.Context, id int64) (*delivery.Delivery, error) {
	if s.delivery == nil || s.delivery.ID != id {
		return nil, shared.NewNotFound("delivery", id)
	}
	return s.delivery, nil
}

func (s *stubDeliveries) GetOrder(_ context.Context, id int64) (*delivery.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, shared.NewNotFound("order", id)
	}
	return s.order, nil
}

type stubConfirmations struct {
	invalidated int
}

func (s *stubConfirmations) BuildConfirmation(_ context.Context, orderID int64) (*reporting.Confirmation, error) {
	return &reporting.Confirmation{OrderID: orderID, OrderNumber: "OC-1"}, nil
}

func (s *stubConfirmations) Invalidate(context.Context) error {
	s.invalidated++
	return nil
}

type stubPoster struct {
	docs []inventory.Document
	err  error
}

func (s *stubPoster) PostDocument(_ context.Context, doc inventory.Document) (inventory.PostingResult, error) {
	s.docs = append(s.docs, doc)
	if s.err != nil {
		return inventory.PostingResult{}, s.err
	}
	return inventory.PostingResult{RunID: "run-1", Document: doc.PostingKey()}, nil
}

type stubNotifier struct {
	notices []Notice
	err     error
}

func (s *stubNotifier) Notify(_ context.Context, n Notice) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.notices = append(s.notices, n)
	return "msg-" + n.DeliveryNumber, nil
}

type fixture struct {
	svc           *Service
	poster        *stubPoster
	notifier      *stubNotifier
	confirmations *stubConfirmations
}

func newFixture(cfg Config) *fixture {
	deliveries := &stubDeliveries{
		delivery: &delivery.Delivery{
			ID: 11, Number: "BL-2601-004", OrderID: 3,
			Allocations: []delivery.Allocation{
				{OrderLineID: 1, Quantity: 2},
				{OrderLineID: 99, Quantity: 1},
			},
		},
		order: &delivery.Order{
			ID: 3, ClientName: "Acme",
			Lines: []delivery.OrderLine{{ID: 1, ProductCode: "P-1", Description: "Cable", UnitPrice: 4.5}},
		},
	}
	f := &fixture{
		poster:        &stubPoster{},
		notifier:      &stubNotifier{},
		confirmations: &stubConfirmations{},
	}
	f.svc = NewService(deliveries, f.confirmations, f.poster, f.notifier, cfg, nil)
	return f
}

func TestSendNotifiesAndPosts(t *testing.T) {
	f := newFixture(Config{DefaultRecipients: []string{" ops@acme.test ", "OPS@acme.test", ""}})

	res, err := f.svc.Send(context.Background(), SendRequest{DeliveryID: 11})
	require.NoError(t, err)

	assert.Equal(t, "msg-BL-2601-004", res.MessageID)
	assert.Equal(t, []string{"ops@acme.test"}, res.Recipients)
	require.NotNil(t, res.Posting)
	assert.Equal(t, "delivery_note:11", res.Posting.Document)
	assert.Empty(t, res.PostingError)
	assert.Equal(t, 1, f.confirmations.invalidated)

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "OC-1", f.notifier.notices[0].Confirmation.OrderNumber)

	require.Len(t, f.poster.docs, 1)
	doc := f.poster.docs[0]
	assert.Equal(t, inventory.KindDeliveryNote, doc.Kind)
	assert.Equal(t, "Acme", doc.ClientName)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, "P-1", doc.Lines[0].Code())
	assert.Equal(t, 2.0, doc.Lines[0].Quantity.Float64())
	assert.Equal(t, 4.5, doc.Lines[0].UnitPrice.Float64())
	assert.Nil(t, doc.Lines[1].ProductCode)
}

func TestSendExplicitRecipientsOverrideDefaults(t *testing.T) {
	f := newFixture(Config{DefaultRecipients: []string{"ops@acme.test"}})

	res, err := f.svc.Send(context.Background(), SendRequest{DeliveryID: 11, Recipients: []string{"buyer@acme.test"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer@acme.test"}, res.Recipients)
}

func TestSendWithoutRecipients(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.svc.Send(context.Background(), SendRequest{DeliveryID: 11})
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, f.poster.docs)
}

func TestSendNotifierFailureSkipsPosting(t *testing.T) {
	f := newFixture(Config{DefaultRecipients: []string{"ops@acme.test"}})
	f.notifier.err = errors.New("queue down")

	_, err := f.svc.Send(context.Background(), SendRequest{DeliveryID: 11})
	require.Error(t, err)
	assert.Empty(t, f.poster.docs)
}

func TestSendPostingErrorsAreReported(t *testing.T) {
	f := newFixture(Config{DefaultRecipients: []string{"ops@acme.test"}})
	f.poster.err = shared.ErrAlreadyPosted

	res, err := f.svc.Send(context.Background(), SendRequest{DeliveryID: 11})
	require.NoError(t, err)
	assert.Nil(t, res.Posting)
	assert.NotEmpty(t, res.PostingError)
	assert.Equal(t, 0, f.confirmations.invalidated)
}

func TestSendUnknownDelivery(t *testing.T) {
	f := newFixture(Config{DefaultRecipients: []string{"ops@acme.test"}})

	_, err := f.svc.Send(context.Background(), SendRequest{DeliveryID: 12})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
