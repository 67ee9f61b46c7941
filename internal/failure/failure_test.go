package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, None, KindOf(nil))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))

	err := New(IndexLoadFailure, "get_relevant", "42", errors.New("bad header"))
	wrapped := fmt.Errorf("query: %w", err)
	assert.Equal(t, IndexLoadFailure, KindOf(wrapped))
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(NoDocuments, "save_or_update", "1", nil))
	assert.True(t, errors.Is(err, &Error{Kind: NoDocuments}))
	assert.False(t, errors.Is(err, &Error{Kind: IndexWriteFailure}))
}

func TestNew_TimeoutIsRetryable(t *testing.T) {
	cause := fmt.Errorf("embed: %w", context.DeadlineExceeded)
	err := New(EmbeddingUnavailable, "save_or_update", "7", cause)
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	assert.False(t, IsRetryable(New(DeletionFailure, "remove_resource", "7", errors.New("disk"))))
}

func TestError_Message(t *testing.T) {
	err := New(IndexWriteFailure, "save_or_update", "42", errors.New("disk full"))
	assert.Equal(t, "save_or_update: index_write_failure (project 42): disk full", err.Error())
	assert.Equal(t, "none", None.String())
}
