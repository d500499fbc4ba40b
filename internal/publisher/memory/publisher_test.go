package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/climatedb/internal/archive"
)

func TestPublisherRecords(t *testing.T) {
	p := New()
	id, err := p.Publish(context.Background(), archive.ArchivedEvent{SourceID: "dw", ArticleID: "a-1"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)

	events := p.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "a-1", events[0].ArticleID)

	events[0].ArticleID = "mutated"
	assert.Equal(t, "a-1", p.Events()[0].ArticleID)
}

func TestPublisherFail(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	p.Fail(boom)
	_, err := p.Publish(context.Background(), archive.ArchivedEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p.Events())
}
