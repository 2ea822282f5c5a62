package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Meet/internal/client/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLocalMediaDegradesToReceiveOnly(t *testing.T) {
	out := &bytes.Buffer{}
	failing := func(context.Context, string) (*media.Source, error) {
		return nil, errors.New("no device")
	}

	local := openLocalMedia(context.Background(), "u1", false, failing, out)
	assert.Nil(t, local)
	assert.Contains(t, out.String(), "receive-only")
}

func TestOpenLocalMediaDisabled(t *testing.T) {
	called := false
	open := func(context.Context, string) (*media.Source, error) {
		called = true
		return nil, nil
	}
	assert.Nil(t, openLocalMedia(context.Background(), "u1", true, open, &bytes.Buffer{}))
	assert.False(t, called)
}

func TestOpenLocalMediaStartsSource(t *testing.T) {
	local := openLocalMedia(context.Background(), "u1", false, media.NewSource, &bytes.Buffer{})
	require.NotNil(t, local)
	assert.Len(t, local.Tracks(), 1)
	local.Stop()
}
