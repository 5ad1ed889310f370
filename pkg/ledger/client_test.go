package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/decker502/scratchcard/internal/ledgertwin"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/ledger"
	"github.com/decker502/scratchcard/pkg/reward"
)

const token = "client-test-token"

type twinFixture struct {
	srv    *httptest.Server
	store  *ledgertwin.Store
	client *ledger.Client
}

func newFixture(t *testing.T, clientToken string) *twinFixture {
	t.Helper()
	store := ledgertwin.NewStore(0, 1)
	h := ledgertwin.NewHandler(store, token, 0, zaptest.NewLogger(t))
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	cfg := &config.LedgerConfig{
		BaseURL:       srv.URL,
		Token:         clientToken,
		Timeout:       2 * time.Second,
		CreditRetries: 3,
	}
	client := ledger.New(cfg, zaptest.NewLogger(t),
		ledger.WithHTTPClient(srv.Client()),
		ledger.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }))
	return &twinFixture{srv: srv, store: store, client: client}
}

func (f *twinFixture) setFault(t *testing.T, fault ledgertwin.Fault) {
	t.Helper()
	body, err := json.Marshal(fault)
	require.NoError(t, err)
	// 管理接口不需要令牌
	resp, err := f.srv.Client().Post(f.srv.URL+"/admin/faults", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRevealSuccess(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(2.5)

	res, err := f.client.Reveal(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.5, res.Amount)
	assert.NotEmpty(t, res.Message)
}

func TestRevealAlreadyRevealedCarriesAmount(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(1.5)
	_, err := f.store.Reveal(card.ID)
	require.NoError(t, err)

	_, err = f.client.Reveal(context.Background(), card.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, reward.ErrAlreadyRevealed)
	assert.Equal(t, reward.KindAlreadyRevealed, reward.Classify(err))

	amount := reward.AmountFrom(err)
	require.NotNil(t, amount)
	assert.Equal(t, 1.5, *amount)
}

func TestRevealUnauthorized(t *testing.T) {
	f := newFixture(t, "wrong")
	card := f.store.Add(1)

	_, err := f.client.Reveal(context.Background(), card.ID)
	require.Error(t, err)
	assert.Equal(t, reward.KindAuthRequired, reward.Classify(err))

	var le *reward.LedgerError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, http.StatusUnauthorized, le.Status)
	assert.Equal(t, "reveal", le.Op)
}

func TestRevealDoesNotRetry(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(1)
	f.setFault(t, ledgertwin.Fault{Endpoint: "reveal", Status: 503, Count: 1})

	_, err := f.client.Reveal(context.Background(), card.ID)
	assert.Equal(t, reward.KindNetwork, reward.Classify(err))

	got, _ := f.store.Get(card.ID)
	assert.Equal(t, reward.StatusPending, got.Status)
}

func TestCreditRetriesWithSameKey(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(2)
	_, err := f.store.Reveal(card.ID)
	require.NoError(t, err)

	// 第一次请求已入账但响应丢失，重试必须被重放而不是变成 already_credited
	f.setFault(t, ledgertwin.Fault{Endpoint: "credit", Status: 503, Count: 1, AfterCommit: true})

	res, err := f.client.Credit(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Amount)
	assert.Equal(t, 2.0, f.store.Balance())
}

func TestCreditGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(2)
	_, err := f.store.Reveal(card.ID)
	require.NoError(t, err)
	f.setFault(t, ledgertwin.Fault{Endpoint: "credit", Status: 502, Count: 10})

	_, err = f.client.Credit(context.Background(), card.ID)
	require.Error(t, err)
	assert.Equal(t, reward.KindNetwork, reward.Classify(err))

	got, _ := f.store.Get(card.ID)
	assert.Equal(t, reward.StatusRevealed, got.Status)
}

func TestCreditAlreadyCredited(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(3)
	_, err := f.store.Reveal(card.ID)
	require.NoError(t, err)
	_, _, err = f.store.Credit(card.ID)
	require.NoError(t, err)

	_, err = f.client.Credit(context.Background(), card.ID)
	assert.ErrorIs(t, err, reward.ErrAlreadyCredited)
	amount := reward.AmountFrom(err)
	require.NotNil(t, amount)
	assert.Equal(t, 3.0, *amount)
}

func TestCreditTimeout(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(1)
	_, err := f.store.Reveal(card.ID)
	require.NoError(t, err)
	f.setFault(t, ledgertwin.Fault{Endpoint: "credit", Delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.client.Credit(ctx, card.ID)
	require.Error(t, err)
	assert.Equal(t, reward.KindTimeout, reward.Classify(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, reward.ErrTimeout))
}

func TestListCardsHidesPendingAmounts(t *testing.T) {
	f := newFixture(t, token)
	a := f.store.Add(1)
	f.store.Add(2)
	_, err := f.store.Reveal(a.ID)
	require.NoError(t, err)

	cards, err := f.client.ListCards(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, reward.StatusRevealed, cards[0].Status)
	require.NotNil(t, cards[0].Amount)
	assert.Equal(t, 1.0, *cards[0].Amount)
	assert.Equal(t, reward.StatusPending, cards[1].Status)
	assert.Nil(t, cards[1].Amount)
}

func TestListCardsRejectsUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cards":[{"id":1,"status":"expired"}]}`))
	}))
	defer srv.Close()

	client := ledger.New(&config.LedgerConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
	_, err := client.ListCards(context.Background())
	assert.Equal(t, reward.KindUnknown, reward.Classify(err))
}

func TestReconcilerOverClient(t *testing.T) {
	f := newFixture(t, token)
	card := f.store.Add(4)

	var mu sync.Mutex
	calls := 0
	counting := ledgerFunc{
		reveal: func(ctx context.Context, id reward.CardID) (reward.Result, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return f.client.Reveal(ctx, id)
		},
		credit: f.client.Credit,
	}
	rec := reward.NewReconciler(counting, time.Second, zaptest.NewLogger(t))

	res, err := rec.Reveal(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Amount)

	res, err = rec.Credit(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Amount)
	assert.Equal(t, 1, calls)
}

type ledgerFunc struct {
	reveal func(context.Context, reward.CardID) (reward.Result, error)
	credit func(context.Context, reward.CardID) (reward.Result, error)
}

func (l ledgerFunc) Reveal(ctx context.Context, id reward.CardID) (reward.Result, error) {
	return l.reveal(ctx, id)
}

func (l ledgerFunc) Credit(ctx context.Context, id reward.CardID) (reward.Result, error) {
	return l.credit(ctx, id)
}
