package reactor

import (
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEvent is a minimal logiface.Event implementation for exercising the
// structured logging paths.
type testEvent struct {
	logiface.UnimplementedEvent
	level logiface.Level
}

func (e *testEvent) Level() logiface.Level        { return e.level }
func (e *testEvent) AddField(key string, val any) {}

type testEventFactory struct{}

func (f *testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level}
}

type testEventWriter struct {
	onWrite func(*testEvent) error
}

func (w *testEventWriter) Write(event *testEvent) error {
	if w.onWrite != nil {
		return w.onWrite(event)
	}
	return nil
}

func newTestLogger(onWrite func(*testEvent) error) *logiface.Logger[logiface.Event] {
	return logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](&testEventFactory{}),
		logiface.WithWriter[*testEvent](&testEventWriter{onWrite: onWrite}),
		logiface.WithLevel[*testEvent](logiface.LevelDebug),
	).Logger()
}

func TestWithLoggerObservesRegistrationLifecycle(t *testing.T) {
	var levels []logiface.Level
	logger := newTestLogger(func(event *testEvent) error {
		levels = append(levels, event.level)
		return nil
	})

	loop, err := New[testState](WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })

	// New itself inserts the wake source.
	require.NotEmpty(t, levels)

	before := len(levels)
	src, err := InsertSource(loop.Handle(), readyPipe(t), func(Readiness, *testState) error {
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, len(levels), before)

	before = len(levels)
	_, err = src.Remove()
	require.NoError(t, err)
	assert.Greater(t, len(levels), before)
}

func TestWithLoggerReportsInsertFailure(t *testing.T) {
	var errorLogged bool
	logger := newTestLogger(func(event *testEvent) error {
		if event.level == logiface.LevelError {
			errorLogged = true
		}
		return nil
	})

	loop, err := New[testState](WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })

	_, err = InsertSource(loop.Handle(), NewGeneric(-1, InterestRead, ModeLevel),
		func(Readiness, *testState) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationRejected)
	assert.True(t, errorLogged)
}

func TestNilLoggerOptionIsSkipped(t *testing.T) {
	loop, err := New[testState](nil, WithLogger(nil))
	require.NoError(t, err)
	assert.NoError(t, loop.Close())
}
