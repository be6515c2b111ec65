package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func newRuntime(t *testing.T) (*Runtime, *bytes.Buffer, *int) {
	t.Helper()
	logs := &bytes.Buffer{}
	code := -1
	rt := &Runtime{
		Service: "test-worker",
		Config:  &config.Config{},
		Logger:  logger.New(logger.Options{ServiceName: "test-worker", Output: logs}),
		exit:    func(c int) { code = c },
	}
	return rt, logs, &code
}

func TestCloseReleasesInReverseOrder(t *testing.T) {
	rt, logs, _ := newRuntime(t)
	var order []string
	rt.Track("database", closeRecorder{name: "database", order: &order})
	rt.Track("redis", closeRecorder{name: "redis", order: &order, err: errors.New("conn reset")})
	rt.Track("pubsub", closeRecorder{name: "pubsub", order: &order})

	rt.Close()
	assert.Equal(t, []string{"pubsub", "redis", "database"}, order)
	assert.Contains(t, logs.String(), "close redis")

	rt.Close()
	assert.Len(t, order, 3, "second close is a no-op")
}

func TestMustExitsAfterClosing(t *testing.T) {
	rt, logs, code := newRuntime(t)
	var order []string
	rt.Track("database", closeRecorder{name: "database", order: &order})

	rt.Must("warm geo index", nil)
	require.Equal(t, -1, *code)

	rt.Must("warm geo index", errors.New("stations table missing"))
	assert.Equal(t, 1, *code)
	assert.Equal(t, []string{"database"}, order)
	assert.Contains(t, logs.String(), "test-worker: warm geo index failed")
}

func TestRunUntilSignalTreatsCancelAsClean(t *testing.T) {
	rt, logs, _ := newRuntime(t)
	ctx, stop := rt.SignalContext(map[string]any{"subscription": "notify-sub"})
	stop()

	err := rt.RunUntilSignal(ctx, func(loopCtx context.Context) error {
		<-loopCtx.Done()
		return loopCtx.Err()
	})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"subscription":"notify-sub"`)
	assert.Contains(t, logs.String(), `"serviceKind":"test-worker"`)
	assert.Contains(t, logs.String(), "test-worker shutting down gracefully")

	err = rt.RunUntilSignal(ctx, func(context.Context) error { return errors.New("subscription deleted") })
	assert.ErrorContains(t, err, "test-worker stopped")
}
