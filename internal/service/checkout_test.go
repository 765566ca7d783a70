package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/messaging/webhook"
	"github.com/GueYatma/koktek-front/internal/testutil"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []webhook.Notification
	fail error
}

func (f *fakeNotifier) Notify(_ context.Context, n webhook.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.fail
}

func (f *fakeNotifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type published struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, event: event})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type checkoutFixture struct {
	backend   *testutil.Backend
	store     *localstore.Memory
	cart      *CartManager
	profile   *ProfileService
	notifier  *fakeNotifier
	publisher *recordingPublisher
	checkout  *Checkout
}

var placedAt = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newCheckout(t *testing.T) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		backend:   testutil.NewBackend(),
		store:     localstore.NewMemory(),
		notifier:  &fakeNotifier{},
		publisher: &recordingPublisher{},
	}
	seedCatalog(f.backend)
	f.cart = newCart(t, f.backend, f.store)
	f.profile = newProfile(f.store)
	f.checkout = NewCheckout(f.cart, f.backend, f.backend, f.profile, f.notifier,
		WithPublisher(f.publisher),
		WithClock(func() time.Time { return placedAt }),
	)

	ctx := context.Background()
	require.NoError(t, f.cart.AddItem(ctx, coque, noir, 3))
	f.cart.Wait()
	return f
}

func validForm() CheckoutForm {
	return CheckoutForm{
		FirstName: "Awa",
		LastName:  "Diallo",
		Email:     " Awa@Example.com",
		Phone:     "+33600000000",
		PostalAddress: PostalAddress{
			AddressLine1: "12 rue des Lilas",
			PostalCode:   "75011",
			City:         "Paris",
			Country:      "FR",
		},
	}
}

func TestCheckout_SubmitHappyPath(t *testing.T) {
	f := newCheckout(t)
	ctx := context.Background()

	order, err := f.checkout.Submit(ctx, validForm())
	require.NoError(t, err)

	assert.Equal(t, "KOK-1773482400000", order.OrderNumber)
	assert.Equal(t, "119.70", order.Total.StringFixed(2))
	assert.Equal(t, 3, order.ItemCount)

	f.backend.Locked(func() {
		require.Len(t, f.backend.Customers, 1)
		assert.Equal(t, "awa@example.com", f.backend.Customers[0].Email)

		require.Len(t, f.backend.Orders, 1)
		rec := f.backend.Orders[order.OrderID]
		require.NotNil(t, rec)
		assert.Equal(t, entity.OrderStatusPendingPayment, rec.Status)
		assert.Equal(t, f.cart.CartID(), rec.CartID)
		require.NotNil(t, rec.Total)
		assert.InDelta(t, 119.70, *rec.Total, 0.001)

		require.Len(t, f.backend.OrderItems, 1)
		item := f.backend.OrderItems[0]
		assert.Equal(t, "p1", item.ProductRef())
		assert.Equal(t, "v1", item.VariantRef())
		assert.Equal(t, 3, item.Quantity)
		require.NotNil(t, item.LineTotal)
		assert.InDelta(t, 119.70, *item.LineTotal, 0.001)

		require.Len(t, f.backend.Deliveries, 1)
		assert.Equal(t, entity.DeliveryStatusPending, f.backend.Deliveries[0].Status)
		assert.Equal(t, "Awa Diallo", f.backend.Deliveries[0].RecipientName)
		assert.Empty(t, f.backend.Billings)
	})

	st := f.checkout.Status()
	assert.Equal(t, StatePayment, st.State)
	assert.Equal(t, ViewChoice, st.View)

	assert.Len(t, f.cart.Items(), 1, "the cart survives until success")
	assert.Equal(t, []string{entity.TopicOrdersPlaced}, f.publisher.topics())

	user := f.profile.Current(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "awa@example.com", user.Email)
	assert.Equal(t, "Diallo", user.LastName)
	assert.Equal(t, "75011", user.Zip)

	history, err := f.profile.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.OrderNumber, history[0].OrderNumber)
	assert.Equal(t, "Coque", history[0].ProductName)
	assert.Equal(t, "Noir", history[0].VariantValue)
}

func TestCheckout_BillingOnlyWhenDifferent(t *testing.T) {
	f := newCheckout(t)
	form := validForm()
	form.BillingDifferent = true
	form.Billing = BillingDetails{
		CompanyName: "Koktek SAS",
		PostalAddress: PostalAddress{
			AddressLine1: "1 quai du Port",
			PostalCode:   "13002",
			City:         "Marseille",
			Country:      "FR",
		},
	}

	_, err := f.checkout.Submit(context.Background(), form)
	require.NoError(t, err)

	f.backend.Locked(func() {
		require.Len(t, f.backend.Billings, 1)
		assert.Equal(t, "Awa Diallo", f.backend.Billings[0].BillingName)
		assert.Equal(t, "Marseille", f.backend.Billings[0].City)
	})
}

func TestCheckout_ReusesCustomerByEmail(t *testing.T) {
	f := newCheckout(t)
	f.backend.Locked(func() {
		f.backend.Customers = append(f.backend.Customers, entity.CustomerRecord{ID: "cust-known", Email: "awa@example.com"})
	})

	order, err := f.checkout.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, "cust-known", order.CustomerID)
	assert.Zero(t, f.backend.Calls("CreateCustomer"))
}

func TestCheckout_InvalidForm(t *testing.T) {
	f := newCheckout(t)
	form := validForm()
	form.City = " "

	_, err := f.checkout.Submit(context.Background(), form)
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "city", fieldErr.Field)
	assert.Zero(t, f.backend.Calls("FindByEmail"))
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckout(t)
	f.cart.Clear(context.Background())

	_, err := f.checkout.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_FailureLeavesCartAndState(t *testing.T) {
	for _, op := range []string{"FindByEmail", "CreateOrder", "CreateItems", "CreateDelivery"} {
		t.Run(op, func(t *testing.T) {
			f := newCheckout(t)
			cause := errors.New("backend down")
			f.backend.Fail(op, cause)

			_, err := f.checkout.Submit(context.Background(), validForm())
			require.ErrorIs(t, err, ErrCheckoutFailed)
			assert.ErrorIs(t, err, cause)

			assert.Equal(t, StateForm, f.checkout.Status().State)
			assert.Len(t, f.cart.Items(), 1)
			assert.Empty(t, f.publisher.topics())
			assert.Nil(t, f.profile.Current(context.Background()))
		})
	}
}

func TestCheckout_CardIsAStub(t *testing.T) {
	f := newCheckout(t)
	assert.ErrorIs(t, f.checkout.ChooseCard(), ErrInvalidState)

	_, err := f.checkout.Submit(context.Background(), validForm())
	require.NoError(t, err)

	require.NoError(t, f.checkout.ChooseCard())
	assert.Equal(t, ViewCard, f.checkout.Status().View)
	assert.ErrorIs(t, f.checkout.PayByCard(context.Background()), ErrCardUnavailable)
	require.NoError(t, f.checkout.BackToChoice())
	assert.Equal(t, ViewChoice, f.checkout.Status().View)
	assert.Equal(t, StatePayment, f.checkout.Status().State)
}

func TestCheckout_PayCashSuccess(t *testing.T) {
	f := newCheckout(t)
	ctx := context.Background()
	order, err := f.checkout.Submit(ctx, validForm())
	require.NoError(t, err)

	require.NoError(t, f.checkout.PayCash(ctx))

	assert.Equal(t, StateSuccess, f.checkout.Status().State)
	f.backend.Locked(func() {
		rec := f.backend.Orders[order.OrderID]
		assert.Equal(t, entity.OrderStatusPendingCash, rec.Status)
		assert.Equal(t, entity.OrderStatusPendingCash, rec.PaymentStatus)
	})

	require.Equal(t, 1, f.notifier.calls())
	sent := f.notifier.sent[0]
	assert.Equal(t, order.OrderID, sent.OrderID)
	assert.Equal(t, order.OrderNumber, sent.OrderNumber)
	assert.InDelta(t, 119.70, sent.TotalAmount, 0.001)
	assert.Equal(t, "cash", sent.PaymentMethod)
	assert.Equal(t, "Awa", sent.Customer.FirstName)
	require.Len(t, sent.Items, 1)
	assert.Equal(t, 3, sent.Items[0].Quantity)

	assert.Equal(t, []string{entity.TopicOrdersPlaced, entity.TopicOrdersCashPending}, f.publisher.topics())

	ticket, err := f.checkout.Ticket()
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, ticket.OrderNumber)
	assert.Equal(t, "Awa Diallo", ticket.CustomerName)
	require.Len(t, ticket.Lines, 1)
	assert.Equal(t, "119.70", ticket.Lines[0].Total.StringFixed(2))
}

func TestCheckout_PayCashWebhookFailureStaysInPayment(t *testing.T) {
	f := newCheckout(t)
	ctx := context.Background()
	order, err := f.checkout.Submit(ctx, validForm())
	require.NoError(t, err)

	f.notifier.fail = &webhook.StatusError{Status: 502}
	err = f.checkout.PayCash(ctx)
	require.ErrorIs(t, err, ErrCheckoutFailed)
	var statusErr *webhook.StatusError
	assert.ErrorAs(t, err, &statusErr)

	assert.Equal(t, StatePayment, f.checkout.Status().State)
	assert.Equal(t, 1, f.notifier.calls())
	f.backend.Locked(func() {
		assert.Equal(t, entity.OrderStatusPendingCash, f.backend.Orders[order.OrderID].Status, "status update is not rolled back")
	})
	assert.Len(t, f.cart.Items(), 1)

	_, err = f.checkout.Ticket()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCheckout_PayCashStatusFailureSkipsWebhook(t *testing.T) {
	f := newCheckout(t)
	ctx := context.Background()
	_, err := f.checkout.Submit(ctx, validForm())
	require.NoError(t, err)

	f.backend.Fail("UpdateStatus", nil)
	assert.ErrorIs(t, f.checkout.PayCash(ctx), ErrCheckoutFailed)
	assert.Zero(t, f.notifier.calls())
	assert.Equal(t, StatePayment, f.checkout.Status().State)
}

func TestCheckout_LeaveClearsCartOnce(t *testing.T) {
	f := newCheckout(t)
	ctx := context.Background()
	assert.False(t, f.checkout.Leave(ctx), "nothing to leave before success")

	_, err := f.checkout.Submit(ctx, validForm())
	require.NoError(t, err)
	require.NoError(t, f.checkout.PayCash(ctx))
	cartID := f.cart.CartID()
	require.NotEmpty(t, cartID)

	assert.True(t, f.checkout.Leave(ctx))
	assert.False(t, f.checkout.Leave(ctx))

	assert.Empty(t, f.cart.Items())
	assert.Empty(t, f.cart.CartID())
	assert.Equal(t, 1, f.backend.Calls("CloseCart"))
	f.backend.Locked(func() {
		assert.Equal(t, entity.CartStatusConverted, f.backend.Carts[cartID].Status)
	})
	assert.Equal(t, StateForm, f.checkout.Status().State)
}

func TestCheckout_RestoreResumesSavedStep(t *testing.T) {
	f := newCheckout(t)
	ctx := context.Background()
	storage := localstore.NewCheckoutStorage(f.store)
	resume := func() *Checkout {
		c := NewCheckout(f.cart, f.backend, f.backend, f.profile, f.notifier, WithCheckoutStorage(storage))
		c.Restore(ctx)
		return c
	}
	f.checkout = resume()
	assert.Equal(t, StateForm, f.checkout.Status().State, "nothing saved yet")

	order, err := f.checkout.Submit(ctx, validForm())
	require.NoError(t, err)

	restored := resume()
	st := restored.Status()
	assert.Equal(t, StatePayment, st.State)
	assert.Equal(t, ViewChoice, st.View)
	require.NotNil(t, st.Order)
	assert.Equal(t, order.OrderID, st.Order.OrderID)

	require.NoError(t, restored.PayCash(ctx))
	require.Equal(t, 1, f.notifier.calls())
	assert.Equal(t, "Awa", f.notifier.sent[0].Customer.FirstName)

	restored = resume()
	assert.Equal(t, StateSuccess, restored.Status().State)
	assert.True(t, restored.Leave(ctx))

	assert.Equal(t, StateForm, resume().Status().State)
	assert.Empty(t, f.cart.Items())
}

func TestCheckout_RestoreIgnoresUnusablePayloads(t *testing.T) {
	ctx := context.Background()
	for _, payload := range []string{`not json`, `{"state":"payment"}`, `{"state":"form","order":{"order_id":"o1"}}`} {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, localstore.KeyCheckout, []byte(payload)))
		c := NewCheckout(nil, nil, nil, nil, nil, WithCheckoutStorage(localstore.NewCheckoutStorage(store)))
		c.Restore(ctx)
		assert.Equal(t, StateForm, c.Status().State, payload)
	}
}
