package rewrap_test

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks MetadataSource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medblock/internal/audit"
	auditstore "medblock/internal/audit/store"
	"medblock/internal/consent/models"
	"medblock/internal/envelope"
	"medblock/internal/keywrap"
	"medblock/internal/keywrap/keystore"
	"medblock/internal/ledger"
	"medblock/internal/platform/kafka/consumer"
	"medblock/internal/platform/logger"
	"medblock/internal/rewrap"
	"medblock/internal/rewrap/mocks"
	rewrapstore "medblock/internal/rewrap/store"
	dErrors "medblock/pkg/domain-errors"
)

type failingDeduper struct{}

func (failingDeduper) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (failingDeduper) Complete(context.Context, string) error { return nil }

func (failingDeduper) Release(context.Context, string) error { return nil }

// ctxDeduper refuses to talk once its context is done, the way a network
// backed deduper does.
type ctxDeduper struct {
	*rewrap.InMemoryDeduper
}

func (d ctxDeduper) Claim(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.InMemoryDeduper.Claim(ctx, id)
}

func (d ctxDeduper) Complete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.InMemoryDeduper.Complete(ctx, id)
}

func (d ctxDeduper) Release(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.InMemoryDeduper.Release(ctx, id)
}

type DispatcherSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	records    *mocks.MockMetadataSource
	keys       *keywrap.Provider
	keyStore   *rewrapstore.InMemory
	auditStore *auditstore.InMemory
	dispatcher *rewrap.Dispatcher
	record     *models.Record
	dek        []byte
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.records = mocks.NewMockMetadataSource(s.ctrl)
	s.keys = keywrap.NewProvider(keywrap.NewLocal(keystore.NewInMemory(), keywrap.WithKeyBits(1024)))
	s.keyStore = rewrapstore.NewInMemory()
	s.auditStore = auditstore.NewInMemory()
	s.dispatcher = s.newDispatcher()

	dek, err := envelope.GenerateKey()
	s.Require().NoError(err)
	wrapped, err := s.keys.Wrap(context.Background(), dek, "org-a")
	s.Require().NoError(err)
	s.dek = dek
	s.record = &models.Record{
		RecordID:   "record_1",
		OwnerID:    "org-a",
		WrappedDEK: wrapped,
		IV:         []byte("0123456789ab"),
		Status:     models.RecordActive,
	}
}

func (s *DispatcherSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DispatcherSuite) newDispatcher(opts ...rewrap.Option) *rewrap.Dispatcher {
	base := []rewrap.Option{
		rewrap.WithAuditRecorder(audit.NewSink(s.auditStore)),
		rewrap.WithLogger(logger.Discard()),
		rewrap.WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
	}
	return rewrap.NewDispatcher(s.records, s.keys, s.keyStore, append(base, opts...)...)
}

func grantedEvent() ledger.Event {
	return ledger.Event{
		Name:      ledger.EventAccessGranted,
		RecordID:  "record_1",
		GranteeID: "org-b",
		GrantID:   "grant_1",
		Purpose:   "treatment",
	}
}

func (s *DispatcherSuite) auditCount() int {
	entries, err := s.auditStore.ListByRecord(context.Background(), "record_1", audit.MaxListLimit)
	s.Require().NoError(err)
	return len(entries)
}

func (s *DispatcherSuite) TestDistributesKey() {
	ctx := context.Background()
	s.records.EXPECT().FindRecord(gomock.Any(), "record_1").Return(s.record, nil)

	s.Require().NoError(s.dispatcher.Handle(ctx, grantedEvent()))

	key, err := s.dispatcher.Key(ctx, "record_1", "org-b")
	s.Require().NoError(err)
	s.Equal("grant_1", key.GrantID)
	s.Equal(s.record.IV, key.IV)

	got, err := s.keys.Unwrap(ctx, key.WrappedDEK, "org-b")
	s.Require().NoError(err)
	s.Equal(s.dek, got)
	s.Equal(1, s.auditCount())
}

func (s *DispatcherSuite) TestDuplicateGrantIsNoop() {
	ctx := context.Background()
	s.records.EXPECT().FindRecord(gomock.Any(), "record_1").Return(s.record, nil).Times(1)

	s.Require().NoError(s.dispatcher.Handle(ctx, grantedEvent()))
	first, err := s.dispatcher.Key(ctx, "record_1", "org-b")
	s.Require().NoError(err)

	s.Require().NoError(s.dispatcher.Handle(ctx, grantedEvent()))
	second, err := s.dispatcher.Key(ctx, "record_1", "org-b")
	s.Require().NoError(err)

	s.Equal(first.WrappedDEK, second.WrappedDEK)
	s.Equal(1, s.auditCount())
}

func (s *DispatcherSuite) TestMissingRecordIsDropped() {
	ctx := context.Background()
	s.records.EXPECT().FindRecord(gomock.Any(), "record_1").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "record not found")).Times(1)

	s.NoError(s.dispatcher.Handle(ctx, grantedEvent()))
	s.NoError(s.dispatcher.Handle(ctx, grantedEvent()))

	_, err := s.dispatcher.Key(ctx, "record_1", "org-b")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DispatcherSuite) TestUnavailableDependencyIsRetried() {
	ctx := context.Background()
	gomock.InOrder(
		s.records.EXPECT().FindRecord(gomock.Any(), "record_1").
			Return(nil, dErrors.New(dErrors.CodeDependencyUnavailable, "database down")),
		s.records.EXPECT().FindRecord(gomock.Any(), "record_1").Return(s.record, nil),
	)

	err := s.dispatcher.Handle(ctx, grantedEvent())
	s.True(dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))

	s.Require().NoError(s.dispatcher.Handle(ctx, grantedEvent()))
	_, err = s.dispatcher.Key(ctx, "record_1", "org-b")
	s.NoError(err)
}

func (s *DispatcherSuite) TestCryptoFailureIsDropped() {
	ctx := context.Background()
	foreign, err := s.keys.Wrap(ctx, s.dek, "org-z")
	s.Require().NoError(err)
	broken := *s.record
	broken.WrappedDEK = foreign
	s.records.EXPECT().FindRecord(gomock.Any(), "record_1").Return(&broken, nil)

	s.NoError(s.dispatcher.Handle(ctx, grantedEvent()))
	_, err = s.dispatcher.Key(ctx, "record_1", "org-b")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Zero(s.auditCount())
}

func (s *DispatcherSuite) TestIgnoredEvents() {
	ctx := context.Background()

	s.Run("other event names", func() {
		ev := grantedEvent()
		ev.Name = ledger.EventAccessRevoked
		s.NoError(s.dispatcher.Handle(ctx, ev))
	})

	s.Run("missing grant id", func() {
		ev := grantedEvent()
		ev.GrantID = ""
		s.NoError(s.dispatcher.Handle(ctx, ev))
	})
}

func (s *DispatcherSuite) TestClaimFailure() {
	d := s.newDispatcher(rewrap.WithDeduper(failingDeduper{}))
	err := d.Handle(context.Background(), grantedEvent())
	s.True(dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))
}

func (s *DispatcherSuite) TestRouter() {
	ctx := context.Background()
	router := rewrap.NewRouter(s.dispatcher, logger.Discard())

	s.Run("undecodable payload is skipped", func() {
		err := router.Handle(ctx, &consumer.Message{
			Headers: map[string]string{ledger.EventHeader: ledger.EventAccessGranted},
			Value:   []byte("{"),
		})
		s.NoError(err)
	})

	s.Run("other events are skipped", func() {
		err := router.Handle(ctx, &consumer.Message{
			Headers: map[string]string{ledger.EventHeader: ledger.EventRecordCreated},
			Value:   []byte(`{"recordId":"record_1"}`),
		})
		s.NoError(err)
	})

	s.Run("grant event reaches dispatcher", func() {
		s.records.EXPECT().FindRecord(gomock.Any(), "record_1").Return(s.record, nil)
		err := router.Handle(ctx, &consumer.Message{
			Headers: map[string]string{ledger.EventHeader: ledger.EventAccessGranted},
			Value:   []byte(`{"recordId":"record_1","granteeId":"org-b","grantId":"grant_9","timestamp":"2026-03-01T09:00:00Z"}`),
		})
		s.Require().NoError(err)
		key, err := s.dispatcher.Key(ctx, "record_1", "org-b")
		s.Require().NoError(err)
		s.Equal("grant_9", key.GrantID)
	})
}

func (s *DispatcherSuite) TestCancelledDeliveryIsRedelivered() {
	dedupe := ctxDeduper{rewrap.NewInMemoryDeduper()}
	d := s.newDispatcher(rewrap.WithDeduper(dedupe))

	ctx, cancel := context.WithCancel(context.Background())
	gomock.InOrder(
		s.records.EXPECT().FindRecord(gomock.Any(), "record_1").DoAndReturn(
			func(ctx context.Context, _ string) (*models.Record, error) {
				cancel()
				return nil, ctx.Err()
			}),
		s.records.EXPECT().FindRecord(gomock.Any(), "record_1").Return(s.record, nil),
	)

	err := d.Handle(ctx, grantedEvent())
	s.ErrorIs(err, context.Canceled)

	s.Require().NoError(d.Handle(context.Background(), grantedEvent()))
	key, err := d.Key(context.Background(), "record_1", "org-b")
	s.Require().NoError(err)
	s.Equal("grant_1", key.GrantID)

	claimed, err := dedupe.Claim(context.Background(), "grant_1")
	s.Require().NoError(err)
	s.False(claimed, "a distributed grant stays done")
}
