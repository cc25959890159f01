package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusPending, false},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusConfirmed, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, PaymentPending.CanTransitionTo(PaymentCompleted))
	assert.True(t, PaymentFailed.CanTransitionTo(PaymentPending))
	assert.True(t, PaymentCompleted.CanTransitionTo(PaymentRefunded))
	assert.False(t, PaymentCompleted.CanTransitionTo(PaymentPending))
	assert.False(t, PaymentRefunded.CanTransitionTo(PaymentCompleted))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("lost")
	require.Error(t, err)
}
