package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	openai := NewMockProvider(KindOpenAI)

	require.NoError(t, registry.Register(openai))

	got, err := registry.Get(KindOpenAI)
	require.NoError(t, err)
	assert.Same(t, openai, got)
	assert.True(t, registry.Has(KindOpenAI))
	assert.False(t, registry.Has(KindGemini))
	assert.Equal(t, 1, registry.Count())

	_, err = registry.Get(KindGemini)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	registry := NewRegistry()

	assert.ErrorIs(t, registry.Register(nil), ErrNilProvider)

	require.NoError(t, registry.Register(NewMockProvider(KindGemini)))
	assert.ErrorIs(t, registry.Register(NewMockProvider(KindGemini)), ErrProviderAlreadyRegistered)

	assert.Error(t, registry.Register(NewMockProvider("")))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_KindsAndSummary(t *testing.T) {
	registry := NewRegistry()
	gemini := NewMockProvider(KindGemini)
	gemini.credential = false

	require.NoError(t, registry.Register(gemini))
	require.NoError(t, registry.Register(NewMockProvider(KindOpenAI)))

	assert.Equal(t, []Kind{KindGemini, KindOpenAI}, registry.Kinds())
	assert.Equal(t, map[string]bool{"openai": true, "gemini": false}, registry.Summary())
}
