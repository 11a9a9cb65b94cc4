package static

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetcherProducesCount(t *testing.T) {
	t.Parallel()

	f := &Fetcher{SourceID: "clien", Count: 3}
	items, err := f.Fetch(context.Background(), " go ")
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "clien post #1 about go", items[0].Title)
}

func TestFetcherErrorAndDelay(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := (&Fetcher{Err: boom}).Fetch(context.Background(), "go")
	require.ErrorIs(t, err, boom)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = (&Fetcher{Delay: time.Second}).Fetch(ctx, "go")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
