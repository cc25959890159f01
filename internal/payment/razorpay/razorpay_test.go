package razorpay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teakspice/storefront/internal/domain/payment"
)

const (
	testKeyID  = "rzp_test_key"
	testSecret = "rzp_test_secret"
)

func newTestGateway(t *testing.T, remoteAmount string) (*Gateway, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != testKeyID || pass != testSecret {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":95050,"currency":"INR","receipt":"ord-1","notes":{"order_id":"ord-1"}}`, string(body))
		_, _ = io.WriteString(w, `{"id":"order_R1","entity":"order","amount":95050,"currency":"INR","status":"created"}`)
	})
	mux.HandleFunc("GET /v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = io.WriteString(w, `{"id":"`+r.PathValue("id")+`","amount":`+remoteAmount+`,"status":"paid"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return New(Config{KeyID: testKeyID, KeySecret: testSecret, BaseURL: srv.URL}), &fetches
}

func TestGateway_CreateIntent(t *testing.T) {
	g, _ := newTestGateway(t, "95050")

	intent, err := g.CreateIntent(context.Background(), payment.IntentRequest{
		OrderID:  "ord-1",
		Amount:   decimal.RequireFromString("950.50"),
		Currency: "INR",
		Customer: payment.Customer{Name: "Asha", Email: "asha@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_R1", intent.ID)
	assert.Equal(t, payment.MethodRazorpay, intent.Method)
	assert.Equal(t, "95050", intent.ClientParams["amount"])
	assert.Equal(t, testKeyID, intent.ClientParams["key"])
	assert.Equal(t, "asha@example.com", intent.ClientParams["prefill_email"])
}

func TestGateway_CreateIntent_APIError(t *testing.T) {
	g, _ := newTestGateway(t, "0")
	g.secret = []byte("wrong")

	_, err := g.CreateIntent(context.Background(), payment.IntentRequest{OrderID: "ord-1", Amount: decimal.NewFromInt(1), Currency: "INR"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
}

func TestGateway_Verify(t *testing.T) {
	intent := payment.Intent{ID: "order_R1", Amount: decimal.RequireFromString("950.50"), Currency: "INR"}
	good := sign([]byte(testSecret), "order_R1", "pay_9")

	for _, tt := range []struct {
		name         string
		remoteAmount string
		payload      payment.Payload
		wantErr      bool
		wantFetch    bool
	}{
		{
			name:         "valid",
			remoteAmount: "95050",
			payload:      payment.Payload{KeyOrderID: "order_R1", KeyPaymentID: "pay_9", KeySignature: good},
			wantFetch:    true,
		},
		{
			name:         "uppercase hex signature",
			remoteAmount: "95050",
			payload:      payment.Payload{KeyOrderID: "order_R1", KeyPaymentID: "pay_9", KeySignature: upper(good)},
			wantFetch:    true,
		},
		{
			name:         "tampered signature",
			remoteAmount: "95050",
			payload:      payment.Payload{KeyOrderID: "order_R1", KeyPaymentID: "pay_9", KeySignature: sign([]byte("other"), "order_R1", "pay_9")},
			wantErr:      true,
		},
		{
			name:         "signature for another payment",
			remoteAmount: "95050",
			payload:      payment.Payload{KeyOrderID: "order_R1", KeyPaymentID: "pay_10", KeySignature: good},
			wantErr:      true,
		},
		{
			name:         "another order",
			remoteAmount: "95050",
			payload: payment.Payload{
				KeyOrderID: "order_R2", KeyPaymentID: "pay_9",
				KeySignature: sign([]byte(testSecret), "order_R2", "pay_9"),
			},
			wantErr: true,
		},
		{
			name:         "amount mismatch",
			remoteAmount: "100",
			payload:      payment.Payload{KeyOrderID: "order_R1", KeyPaymentID: "pay_9", KeySignature: good},
			wantErr:      true,
			wantFetch:    true,
		},
		{
			name:         "missing fields",
			remoteAmount: "95050",
			payload:      payment.Payload{KeyOrderID: "order_R1"},
			wantErr:      true,
		},
		{
			name:         "not hex",
			remoteAmount: "95050",
			payload:      payment.Payload{KeyOrderID: "order_R1", KeyPaymentID: "pay_9", KeySignature: "zz"},
			wantErr:      true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g, fetches := newTestGateway(t, tt.remoteAmount)
			conf, err := g.Verify(context.Background(), intent, tt.payload)
			if tt.wantErr {
				require.ErrorIs(t, err, payment.ErrSignatureMismatch)
				assert.Nil(t, conf)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "pay_9", conf.PaymentID)
			}
			assert.Equal(t, tt.wantFetch, fetches.Load() > 0)
		})
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestToPaise(t *testing.T) {
	for in, want := range map[string]int64{
		"0":      0,
		"1":      100,
		"950.50": 95050,
		"99.995": 10000,
		"12.341": 1234,
	} {
		assert.Equal(t, want, toPaise(decimal.RequireFromString(in)), in)
	}
}
