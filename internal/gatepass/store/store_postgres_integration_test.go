//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatehouse/internal/gatepass/models"
	"gatehouse/internal/gatepass/store"
	"gatehouse/internal/occupancy"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/testutil/containers"
)

type PostgresVisitorStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	society  domain.SocietyID
	base     time.Time
}

func TestPostgresVisitorStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresVisitorStoreSuite))
}

func (s *PostgresVisitorStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresVisitorStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "visitor_logs"))
	s.society = domain.NewSocietyID()
	s.base = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresVisitorStoreSuite) pending(flat, mobile string, at time.Time) *models.VisitorLog {
	v, err := models.NewPendingVisitor(domain.NewVisitorID(), models.NewVisitorEntry{
		SocietyID:    s.society,
		GuardID:      domain.NewAccountID(),
		ResidentID:   domain.NewAccountID(),
		FlatNo:       flat,
		PersonName:   "Visitor",
		PersonMobile: mobile,
		EntryType:    models.EntryVisitor,
	}, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), v))
	return v
}

func (s *PostgresVisitorStoreSuite) TestPendingDuplicateIsConflict() {
	s.pending("A-1", "9800000001", s.base)
	dup, err := models.NewPendingVisitor(domain.NewVisitorID(), models.NewVisitorEntry{
		SocietyID: s.society, FlatNo: "A-1", PersonName: "Again", PersonMobile: "9800000001",
		EntryType: models.EntryVisitor,
	}, s.base)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(context.Background(), dup), sentinel.ErrConflict)
}

func (s *PostgresVisitorStoreSuite) TestGuestPassRoundTrip() {
	ctx := context.Background()
	issuer := domain.NewAccountID()
	g, err := models.NewGuestVisitor(domain.NewVisitorID(), s.society, "B-2", issuer, "Meera", "9822222222",
		"246810", s.base, 12*time.Hour)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, g))

	found, err := s.store.FindActiveGuestPass(ctx, s.society, "246810")
	s.Require().NoError(err)
	s.Equal(g.ID, found.ID)
	s.Equal(issuer, found.Pass.IssuedBy)
	s.True(found.Pass.ExpiresAt.Equal(g.Pass.ExpiresAt))

	at := s.base.Add(time.Hour)
	_, err = s.store.Execute(ctx, g.ID, func(v *models.VisitorLog) error { return v.CanRedeem(at) },
		func(v *models.VisitorLog) { v.ApplyRedeem(at) })
	s.Require().NoError(err)

	guard := domain.NewAccountID()
	entered, err := s.store.Execute(ctx, g.ID, func(v *models.VisitorLog) error { return v.CanAllowGuestEntry(at) },
		func(v *models.VisitorLog) { v.ApplyGuestEntry(guard, at) })
	s.Require().NoError(err)
	s.Equal(models.OTPUsed, entered.Pass.Status)

	_, err = s.store.FindActiveGuestPass(ctx, s.society, "246810")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresVisitorStoreSuite) TestRowLockSerializesDecisions() {
	v := s.pending("A-1", "9800000002", s.base)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(context.Background(), v.ID,
				func(v *models.VisitorLog) error { return v.CanDecide() },
				func(v *models.VisitorLog) { v.ApplyApprove(domain.NewAccountID(), s.base) })
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresVisitorStoreSuite) TestVisibilityWindows() {
	handover := s.base.Add(time.Hour)
	before := s.pending("A-1", "", s.base)
	at := s.pending("A-1", "", handover)

	page, total, err := s.store.List(context.Background(), models.ListFilter{
		SocietyID:  s.society,
		FlatNo:     "A-1",
		Visibility: &occupancy.Visibility{Exclude: []occupancy.Window{{From: handover}}},
		Page:       1,
		Limit:      10,
	})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(before.ID, page[0].ID)

	page, _, err = s.store.List(context.Background(), models.ListFilter{
		SocietyID:  s.society,
		FlatNo:     "A-1",
		Visibility: &occupancy.Visibility{Include: &occupancy.Window{From: handover}},
		Page:       1,
		Limit:      10,
	})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(at.ID, page[0].ID)
}
