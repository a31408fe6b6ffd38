package membundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
)

func mustBundle(t *testing.T, name string) *domain.Bundle {
	t.Helper()
	b, err := domain.NewBundle(name, nil, nil)
	require.NoError(t, err)
	return b
}

func TestGetBundleUnknownName(t *testing.T) {
	s := New()
	_, err := s.GetBundle("missing")
	require.ErrorIs(t, err, errors.ErrBundleNotFound)
}

func TestSetBundleFirstStoreDoesNotNotify(t *testing.T) {
	s := New()
	var fired int
	s.AddBundleUpdateHandler("web", func(*domain.Bundle) { fired++ })

	s.SetBundle("web", mustBundle(t, "web"))
	assert.Equal(t, 0, fired)

	got, err := s.GetBundle("web")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Name)
}

func TestSetBundleReplacementNotifiesHandlers(t *testing.T) {
	s := New()
	s.SetBundle("web", mustBundle(t, "web"))

	var seen []*domain.Bundle
	s.AddBundleUpdateHandler("web", func(b *domain.Bundle) { seen = append(seen, b) })
	s.AddBundleUpdateHandler("web", func(b *domain.Bundle) { seen = append(seen, b) })

	next := mustBundle(t, "web")
	s.SetBundle("web", next)

	require.Len(t, seen, 2)
	assert.Same(t, next, seen[0])
	assert.Same(t, next, seen[1])
}

func TestHandlersAreScopedByName(t *testing.T) {
	s := New()
	s.SetBundle("web", mustBundle(t, "web"))
	s.SetBundle("other", mustBundle(t, "other"))

	var fired int
	s.AddBundleUpdateHandler("other", func(*domain.Bundle) { fired++ })

	s.SetBundle("web", mustBundle(t, "web"))
	assert.Equal(t, 0, fired)
}
