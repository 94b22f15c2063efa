package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * 1-5", false},
		{"@hourly", false},
		{"@every 90s", false},
		{"* * * *", true},
		{"61 * * * *", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := ParseSchedule("@hourly", "Mars/Olympus")
	assert.Error(t, err)
}

func TestNextRuns(t *testing.T) {
	s, err := ParseSchedule("30 * * * *", "UTC")
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 10, 45, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 13, 30, 0, 0, time.UTC),
	}, NextRuns(s, from, 3))
}

func TestParseSchedule_Timezone(t *testing.T) {
	s, err := ParseSchedule("0 9 * * *", "Europe/Rome")
	require.NoError(t, err)

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	next := s.Next(from)
	assert.Equal(t, 8, next.UTC().Hour(), "09:00 in Rome is 08:00 UTC in winter")
}

func TestNew_RequiresJob(t *testing.T) {
	_, err := New(Config{Expr: "@hourly"})
	assert.ErrorIs(t, err, ErrNoJob)

	_, err = New(Config{Expr: "bogus", Job: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestTick_CountsFailures(t *testing.T) {
	calls := 0
	s, err := New(Config{
		Expr:   "@hourly",
		Logger: quietLogger(),
		Job: func(context.Context) error {
			calls++
			if calls == 2 {
				return errors.New("workflow failed")
			}
			return nil
		},
	})
	require.NoError(t, err)

	assert.True(t, s.Tick(context.Background()))
	assert.True(t, s.Tick(context.Background()))
	assert.Equal(t, Stats{Runs: 2, Failures: 1}, s.Stats())
}

func TestTick_SkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s, err := New(Config{
		Expr:   "@hourly",
		Logger: quietLogger(),
		Job: func(context.Context) error {
			close(entered)
			<-release
			return nil
		},
	})
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.Tick(context.Background()) }()
	<-entered

	assert.False(t, s.Tick(context.Background()))
	close(release)
	assert.True(t, <-done)
	assert.Equal(t, Stats{Runs: 1, Skipped: 1}, s.Stats())
}

func TestRun_RunOnStartAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)

	s, err := New(Config{
		Expr:       "@hourly",
		Logger:     quietLogger(),
		RunOnStart: true,
		Job: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.EqualValues(t, 1, s.Stats().Runs)
}
