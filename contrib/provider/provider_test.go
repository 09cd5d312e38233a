package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sehgal-vip/travel-agent/contrib/provider/claude"
	"github.com/sehgal-vip/travel-agent/contrib/provider/openai"
	errorskg "github.com/sehgal-vip/travel-agent/errors"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	g, err := New(ctx, Config{Name: "claude", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &claude.Provider{}, g)

	g, err = New(ctx, Config{Name: "OpenAI", APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Provider{}, g)

	g, err = New(ctx, Config{Name: "groq", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Provider{}, g)

	_, err = New(ctx, Config{Name: "claude"})
	require.ErrorIs(t, err, errorskg.ErrInvalidInput)

	_, err = New(ctx, Config{Name: "nope", APIKey: "k"})
	require.ErrorIs(t, err, errorskg.ErrInvalidInput)
}
