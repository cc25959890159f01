package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct{ m Method }

func (s stubGateway) Method() Method { return s.m }

func (s stubGateway) CreateIntent(context.Context, IntentRequest) (*Intent, error) {
	return &Intent{ID: "i1", Method: s.m}, nil
}

func (s stubGateway) Verify(context.Context, Intent, Payload) (*Confirmation, error) {
	return &Confirmation{}, nil
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" COD ")
	require.NoError(t, err)
	assert.Equal(t, MethodCOD, m)

	_, err = ParseMethod("bitcoin")
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(stubGateway{m: MethodRazorpay})

	g, err := r.Get(MethodRazorpay)
	require.NoError(t, err)
	assert.Equal(t, MethodRazorpay, g.Method())

	_, err = r.Get(MethodPhonePe)
	require.ErrorIs(t, err, ErrMethodUnavailable)

	var nilRegistry *Registry
	_, err = nilRegistry.Get(MethodRazorpay)
	require.ErrorIs(t, err, ErrMethodUnavailable)
}
