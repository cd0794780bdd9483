package checkout

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSettings(t *testing.T) {
	s, err := FetchSettings(context.Background(), &fakeProvider{settings: testSettings()})
	require.NoError(t, err)

	assert.Len(t, s.Coupons, 3)
	assert.Len(t, s.TaxRules, 1)
	assert.Len(t, s.ShippingMethods, 2)

	m, ok := s.ShippingMethod("Standard")
	require.True(t, ok)
	assert.True(t, d("5").Equal(m.Cost))

	_, ok = s.ShippingMethod("standard")
	assert.False(t, ok, "shipping method names are exact")
}

func TestFetchSettings_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := FetchSettings(context.Background(), &fakeProvider{err: boom})
	require.ErrorIs(t, err, boom)
}
