package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepairer struct {
	mu     sync.Mutex
	calls  int
	actors []string
	result *dto.GTINRepairResponse
	err    error
}

func (f *fakeRepairer) RepairAll(ctx context.Context, metadata *businessflow.ClientMetadata) (*dto.GTINRepairResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.actors = append(f.actors, metadata.Actor)
	if f.err != nil {
		return f.result, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &dto.GTINRepairResponse{}, nil
}

func (f *fakeRepairer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name    string
		result  *dto.GTINRepairResponse
		err     error
		wantRan bool
	}{
		{name: "repairs", result: &dto.GTINRepairResponse{Scanned: 3, Repaired: 3}, wantRan: true},
		{name: "nothing to do", wantRan: true},
		{name: "partial failures", result: &dto.GTINRepairResponse{Scanned: 2, Repaired: 1, Failed: 1}, wantRan: true},
		{
			name:    "lock held elsewhere",
			err:     businessflow.NewBusinessError("GTIN_REPAIR_IN_PROGRESS", "busy", businessflow.ErrRepairInProgress),
			wantRan: false,
		},
		{name: "store failure", err: errors.New("connection refused"), wantRan: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repairer := &fakeRepairer{result: tt.result, err: tt.err}
			s := NewGTINRepairScheduler(repairer, time.Hour, time.Minute, nil)

			assert.Equal(t, tt.wantRan, s.RunOnce(context.Background()))
			assert.Equal(t, 1, repairer.callCount())
			assert.Equal(t, []string{"system:gtin_repair"}, repairer.actors)
		})
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	repairer := &fakeRepairer{}
	s := NewGTINRepairScheduler(repairer, 20*time.Millisecond, 0, nil)

	stop := s.Start(context.Background())
	require.Eventually(t, func() bool { return repairer.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	stop()

	calls := repairer.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, repairer.callCount(), "no passes after stop")
}

func TestNewGTINRepairSchedulerDefaults(t *testing.T) {
	s := NewGTINRepairScheduler(&fakeRepairer{}, 0, 0, nil)
	assert.Equal(t, time.Hour, s.interval)
	assert.Equal(t, time.Hour, s.runTimeout)

	s = NewGTINRepairScheduler(&fakeRepairer{}, time.Minute, time.Hour, nil)
	assert.Equal(t, time.Minute, s.runTimeout, "a pass never outlives its interval")
}
