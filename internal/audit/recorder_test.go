package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"routier/internal/platform/metrics"
	"routier/pkg/requestcontext"
)

type RecorderSuite struct {
	suite.Suite
	store *MemoryStore
	m     *metrics.Metrics
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.m = metrics.NewWith(prometheus.NewRegistry())
}

func (s *RecorderSuite) newRecorder(buffer int) *Recorder {
	return NewRecorder(s.store, slog.New(slog.DiscardHandler), s.m, buffer)
}

func (s *RecorderSuite) TestRecord() {
	s.Run("captures actor and client metadata from context", func() {
		rec := s.newRecorder(8)
		ctx := requestcontext.WithActor(context.Background(), "agent.dupont")
		ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.9", "TestAgent/1.0")

		rec.Record(ctx, "vehicule_created", map[string]any{"id": int64(3)})
		rec.Flush()

		entries := s.store.All()
		s.Require().Len(entries, 1)
		e := entries[0]
		s.Equal("vehicule_created", e.Action)
		s.Require().NotNil(e.Actor)
		s.Equal("agent.dupont", *e.Actor)
		s.Require().NotNil(e.SourceIP)
		s.Equal("10.0.0.9", *e.SourceIP)
		s.Equal(int64(3), e.Payload["id"])
		s.Equal(float64(1), testutil.ToFloat64(s.m.AuditAppended))
	})

	s.Run("anonymous context leaves actor null", func() {
		rec := s.newRecorder(8)
		rec.Record(context.Background(), "user_login", nil)
		rec.Flush()

		entries := s.store.All()
		s.Require().Len(entries, 2)
		s.Nil(entries[1].Actor)
		s.Nil(entries[1].SourceIP)
	})
}

func (s *RecorderSuite) TestBestEffort() {
	s.Run("full inbox drops instead of blocking", func() {
		rec := s.newRecorder(1)
		rec.Record(context.Background(), "first", nil)
		rec.Record(context.Background(), "second", nil)

		s.Equal(float64(1), testutil.ToFloat64(s.m.AuditDropped))

		rec.Flush()
		entries := s.store.All()
		s.Require().Len(entries, 1)
		s.Equal("first", entries[0].Action)
	})

	s.Run("append failure is swallowed and counted", func() {
		s.store.AppendErr = errors.New("ledger down")
		rec := s.newRecorder(8)
		rec.Record(context.Background(), "vehicule_created", nil)
		rec.Flush()

		s.Equal(float64(1), testutil.ToFloat64(s.m.AuditDropped))
		s.store.AppendErr = nil
		s.Empty(s.store.All())
	})
}

func (s *RecorderSuite) TestRun() {
	s.Run("drains continuously and flushes on cancel", func() {
		rec := s.newRecorder(8)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- rec.Run(ctx) }()

		rec.Record(context.Background(), "accident_created", nil)
		s.Eventually(func() bool {
			return len(s.store.All()) == 1
		}, time.Second, 5*time.Millisecond)

		cancel()
		s.NoError(<-done)
	})

	s.Run("stopping on cancel is not an error", func() {
		rec := s.newRecorder(8)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- rec.Run(ctx) }()
		rec.Record(context.Background(), "user_login", nil)
		cancel()

		s.NoError(<-done)
		// The buffered entry survives the stop.
		s.Eventually(func() bool {
			for _, e := range s.store.All() {
				if e.Action == "user_login" {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
	})
}
