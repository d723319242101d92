package repositories

import (
	"context"
	"inchat/domain"
	"inchat/errors"
	"inchat/runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type waitResult struct {
	record domain.Stored[domain.Channel]
	err    error
}

func waitInBackground(ctx context.Context, f fixture, channel domain.Stored[domain.Channel]) <-chan waitResult {
	results := make(chan waitResult, 1)
	go func() {
		record, err := f.stores.Channels.WaitForNext(ctx, channel.ID, channel.Version)
		results <- waitResult{record, err}
	}()
	return results
}

func TestWaitForNext_Returns_Immediately_When_Already_Changed(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	original, err := f.stores.Channels.Save(ctx, domain.NewChannel("general"))
	req.NoError(err)
	updated, err := f.stores.Channels.Touch(ctx, original)
	req.NoError(err)

	got, err := f.stores.Channels.WaitForNext(ctx, original.ID, original.Version)
	req.NoError(err)
	req.Equal(updated, got)
	req.Equal(0, f.waiters.Pending(original.ID))
}

func TestWaitForNext_Blocks_Until_Update(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	channel, err := f.stores.Channels.Save(ctx, domain.NewChannel("general"))
	req.NoError(err)

	// Given a reader parked on the current version
	results := waitInBackground(ctx, f, channel)
	req.Eventually(func() bool { return f.waiters.Pending(channel.ID) == 1 }, time.Second, 5*time.Millisecond)

	// When the channel is only read
	_, err = f.stores.Channels.Get(ctx, channel.ID)
	req.NoError(err)

	// Then the reader stays parked
	select {
	case r := <-results:
		t.Fatalf("waiter released by a read: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	// When the channel is updated
	updated, err := f.stores.Channels.Touch(ctx, channel)
	req.NoError(err)

	// Then the reader gets exactly that version
	select {
	case r := <-results:
		req.NoError(r.err)
		req.Equal(updated, r.record)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by update")
	}
}

func TestWaitForNext_Released_After_Unit_Commit(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	channel, err := f.stores.Channels.Save(ctx, domain.NewChannel("general"))
	req.NoError(err)
	results := waitInBackground(ctx, f, channel)
	req.Eventually(func() bool { return f.waiters.Pending(channel.ID) == 1 }, time.Second, 5*time.Millisecond)

	_, ok, err := runtime.RunAtomic(ctx, f.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		updated, err := f.stores.Channels.Touch(ctx, channel)
		if err != nil {
			return err
		}
		// Not delivered while the unit is still open
		req.Equal(1, f.waiters.Pending(channel.ID))
		res.Accept(updated)
		return nil
	})
	req.NoError(err)
	req.True(ok)

	r := <-results
	req.NoError(r.err)
	live, err := f.stores.Channels.Get(ctx, channel.ID)
	req.NoError(err)
	req.Equal(live, r.record)
}

func TestWaitForNext_Unit_Announces_Only_Its_Last_Version(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	channel, err := f.stores.Channels.Save(ctx, domain.NewChannel("general"))
	req.NoError(err)
	results := waitInBackground(ctx, f, channel)
	req.Eventually(func() bool { return f.waiters.Pending(channel.ID) == 1 }, time.Second, 5*time.Millisecond)

	// When one unit moves the channel twice
	last, ok, err := runtime.RunAtomic(ctx, f.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		intermediate, err := f.stores.Channels.Touch(ctx, channel)
		if err != nil {
			return err
		}
		final, err := f.stores.Channels.Touch(ctx, intermediate)
		if err != nil {
			return err
		}
		res.Accept(final)
		return nil
	})
	req.NoError(err)
	req.True(ok)

	// Then the reader only ever sees the committed version, delivered once
	r := <-results
	req.NoError(r.err)
	req.Equal(last, r.record)
	req.Equal(1.0, testutil.ToFloat64(f.metrics.WaitersNotified))
	req.Equal(2.0, testutil.ToFloat64(f.metrics.StoreMutations.WithLabelValues(KindChannel, "update")))
}

func TestWaitForNext_Deleted_Channel(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	channel, err := f.stores.Channels.Save(ctx, domain.NewChannel("general"))
	req.NoError(err)
	results := waitInBackground(ctx, f, channel)
	req.Eventually(func() bool { return f.waiters.Pending(channel.ID) == 1 }, time.Second, 5*time.Millisecond)

	req.NoError(f.stores.Channels.Delete(ctx, channel))

	r := <-results
	req.ErrorIs(r.err, errors.ErrNotFound)

	// Waiting on a channel that is already gone does not park
	_, err = f.stores.Channels.WaitForNext(ctx, channel.ID, channel.Version)
	req.ErrorIs(err, errors.ErrNotFound)
	req.Equal(0, f.waiters.Pending(channel.ID))
}

func TestWaitForNext_Cancel_Unregisters(t *testing.T) {
	req := require.New(t)
	f := setup(t)

	channel, err := f.stores.Channels.Save(context.Background(), domain.NewChannel("general"))
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	results := waitInBackground(ctx, f, channel)
	req.Eventually(func() bool { return f.waiters.Pending(channel.ID) == 1 }, time.Second, 5*time.Millisecond)

	// When the client goes away
	cancel()

	// Then the call returns and leaves no registration behind
	r := <-results
	req.ErrorIs(r.err, context.Canceled)
	req.Equal(0, f.waiters.Pending(channel.ID))
}
