package lending_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straightothepoint12/FinscoreX/internal/lending"
	"github.com/straightothepoint12/FinscoreX/internal/store"
)

func TestHub_BroadcastsFundingEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := lending.NewHub()
	go hub.Run(ctx)

	svc := lending.NewService(store.NewMemoryStore(), hub, lending.Options{})
	r := chi.NewRouter()
	r.Route("/api/v1", svc.RegisterRoutes)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	loan := seedApprovedLoan(t, svc, "borrower1", sampleProfile(), "1000", 12)

	_, err = svc.Invest(context.Background(), lending.InvestRequest{
		InvestorID: "investor1",
		LoanID:     loan.ID,
		Amount:     d("400"),
	})
	require.NoError(t, err)

	var ev lending.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, lending.EventInvestmentAccepted, ev.Type)
	assert.Equal(t, loan.ID, ev.LoanID)
	assert.Equal(t, "400", ev.Amount)
	assert.Equal(t, "40", ev.FundingPercentage)
	assert.Equal(t, "D", ev.Grade)

	_, err = svc.Invest(context.Background(), lending.InvestRequest{
		InvestorID: "investor2",
		LoanID:     loan.ID,
		Amount:     d("600"),
	})
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, lending.EventInvestmentAccepted, ev.Type)

	ev = lending.Event{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, lending.EventLoanFunded, ev.Type)
	assert.Equal(t, "1000", ev.TotalFunded)
	assert.Equal(t, "100", ev.FundingPercentage)
}

func TestHub_ClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := lending.NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
