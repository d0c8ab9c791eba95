package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"flowforge/backend"
	"flowforge/backend/sqlite"
	"flowforge/client"
	"flowforge/graph"
)

func testScheduler(t *testing.T) (*Scheduler, *client.Client, *sqlite.Backend, *clock.Mock) {
	t.Helper()

	b := sqlite.NewInMemoryBackend()
	c := client.New(b, b)

	// Store timestamps use the wall clock, so the mock starts there too.
	mock := clock.NewMock()
	mock.Set(time.Now())

	s := New(b, c, &Options{Interval: time.Minute, Clock: mock})

	t.Cleanup(func() {
		c.Close()
		require.NoError(t, b.Close())
	})

	return s, c, b, mock
}

func createScheduled(t *testing.T, c *client.Client, expr string) *backend.Workflow {
	t.Helper()

	workflow := &backend.Workflow{
		Name:              "nightly",
		Status:            backend.StatusActive,
		CrontabExpression: expr,
		Definition: &graph.Definition{
			Nodes: []graph.Node{{ID: "a", Task: "extract"}},
		},
	}
	require.NoError(t, c.CreateWorkflow(context.Background(), workflow))

	return workflow
}

func Test_Scheduler_IsDue(t *testing.T) {
	s, _, _, _ := testScheduler(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		last *time.Time
		now  time.Time
		want bool
	}{
		{"every minute, window passed", "* * * * *", &base, base.Add(2 * time.Minute), true},
		{"every minute, within window", "* * * * *", &base, base.Add(30 * time.Second), false},
		{"never triggered, created long ago", "* * * * *", nil, base.Add(2 * time.Minute), true},
		{"daily, same day", "0 0 * * *", &base, base.Add(6 * time.Hour), false},
		{"daily, next day", "0 0 * * *", &base, base.Add(13 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := &backend.Workflow{
				CrontabExpression: tt.expr,
				CreatedAt:         base,
				LastRunAt:         tt.last,
			}

			due, err := s.isDue(workflow, tt.now)
			require.NoError(t, err)
			require.Equal(t, tt.want, due)
		})
	}
}

func Test_Scheduler_IsDueInvalidExpression(t *testing.T) {
	s, _, _, _ := testScheduler(t)

	_, err := s.isDue(&backend.Workflow{CrontabExpression: "not a schedule"}, time.Now())
	require.Error(t, err)
}

func Test_Scheduler_TriggersDueWorkflow(t *testing.T) {
	s, c, b, mock := testScheduler(t)
	ctx := context.Background()

	workflow := createScheduled(t, c, "* * * * *")

	// Two minutes later the every-minute schedule is due.
	mock.Add(2 * time.Minute)
	s.tick(ctx)

	runs, err := b.ListRuns(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	job, err := b.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, runs[0].ID, job.RunID)

	touched, err := b.GetWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, touched.LastRunAt)
}

func Test_Scheduler_SkipsNotYetDue(t *testing.T) {
	s, c, b, _ := testScheduler(t)
	ctx := context.Background()

	// Yearly schedule: created now, nowhere near due.
	workflow := createScheduled(t, c, "0 0 1 1 *")

	s.tick(ctx)

	runs, err := b.ListRuns(ctx, workflow.ID)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func Test_Scheduler_IgnoresInvalidExpression(t *testing.T) {
	s, c, b, mock := testScheduler(t)
	ctx := context.Background()

	workflow := createScheduled(t, c, "not a schedule")

	// Must not panic or trigger.
	mock.Add(2 * time.Minute)
	s.tick(ctx)

	runs, err := b.ListRuns(ctx, workflow.ID)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func Test_Scheduler_TicksOnClock(t *testing.T) {
	s, c, b, mock := testScheduler(t)

	workflow := createScheduled(t, c, "* * * * *")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	// Let the tick loop install its ticker before advancing the clock.
	time.Sleep(10 * time.Millisecond)
	mock.Add(2 * time.Minute)

	require.Eventually(t, func() bool {
		runs, err := b.ListRuns(context.Background(), workflow.ID)
		return err == nil && len(runs) >= 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, s.WaitForCompletion())
}
