package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
)

type mockRepo struct {
	last   Query
	result []ProductUnits
}

func (m *mockRepo) TopProducts(_ context.Context, q Query) ([]ProductUnits, error) {
	m.last = q
	return m.result, nil
}

var (
	seller = &auth.Principal{UserID: 1, IsSeller: true}
	from   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to     = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
)

func TestTopProducts_SellerOnly(t *testing.T) {
	svc := NewService(&mockRepo{})

	_, err := svc.TopProducts(context.Background(), nil, Query{From: from, To: to})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = svc.TopProducts(context.Background(), &auth.Principal{UserID: 2}, Query{From: from, To: to})
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestTopProducts_EmptyRange(t *testing.T) {
	svc := NewService(&mockRepo{})

	top, err := svc.TopProducts(context.Background(), seller, Query{From: from, To: to})

	require.NoError(t, err)
	assert.NotNil(t, top)
	assert.Empty(t, top)
}

func TestTopProducts_DefaultLimit(t *testing.T) {
	repo := &mockRepo{result: []ProductUnits{{ProductID: 1, ProductName: "Widget", UnitsOrdered: 5}}}
	svc := NewService(repo)

	top, err := svc.TopProducts(context.Background(), seller, Query{From: from, To: to})

	require.NoError(t, err)
	assert.Len(t, top, 1)
	assert.Equal(t, DefaultLimit, repo.last.Limit)
}

func TestTopProducts_Validation(t *testing.T) {
	svc := NewService(&mockRepo{})
	tests := []struct {
		name  string
		q     Query
		field string
	}{
		{name: "missing from", q: Query{To: to}, field: "date_from"},
		{name: "missing to", q: Query{From: from}, field: "date_to"},
		{name: "inverted", q: Query{From: to, To: from}, field: "date_from"},
		{name: "negative limit", q: Query{From: from, To: to, Limit: -1}, field: "limit"},
		{name: "limit too large", q: Query{From: from, To: to, Limit: MaxLimit + 1}, field: "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.TopProducts(context.Background(), seller, tt.q)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestTopProducts_SingleDay(t *testing.T) {
	svc := NewService(&mockRepo{})

	_, err := svc.TopProducts(context.Background(), seller, Query{From: from, To: from, Limit: 1})
	require.NoError(t, err)
}
