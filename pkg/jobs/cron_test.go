package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRegister(t *testing.T) {
	s := NewScheduler(nil, time.Minute)
	require.NoError(t, s.Register("generation", "0 2 * * *", func(ctx context.Context) error { return nil }))
	assert.Equal(t, 1, s.Entries())

	s.Start()
	s.Stop()
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(nil, 0)
	err := s.Register("broken", "every night", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, 0, s.Entries())
}
