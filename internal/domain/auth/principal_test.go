package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireSeller(t *testing.T) {
	require.ErrorIs(t, RequireSeller(nil), ErrUnauthenticated)
	require.ErrorIs(t, RequireSeller(&Principal{}), ErrUnauthenticated)
	require.ErrorIs(t, RequireSeller(&Principal{UserID: 1}), ErrForbidden)
	require.NoError(t, RequireSeller(&Principal{UserID: 1, IsSeller: true}))
}

func TestCanAccess(t *testing.T) {
	customer := &Principal{UserID: 7}
	seller := &Principal{UserID: 9, IsSeller: true}

	assert.True(t, customer.CanAccess(7))
	assert.False(t, customer.CanAccess(8))
	assert.True(t, seller.CanAccess(8))

	var anon *Principal
	assert.False(t, anon.CanAccess(7))
}

func TestPrincipalContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	p := &Principal{UserID: 3, Username: "alice"}
	ctx := WithPrincipal(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey([]byte("pepper"), "key")
	b := HashAPIKey([]byte("pepper"), "key")
	c := HashAPIKey([]byte("other"), "key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
