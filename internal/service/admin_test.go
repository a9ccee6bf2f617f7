package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"audio_relay/internal/domain"
	"audio_relay/internal/service/mocks"
)

type AdminTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store     *mocks.MockAdminStore
	txManager *mocks.MockTransactionManager

	admin *Admin
	now   time.Time
}

func (s *AdminTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockAdminStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.admin = NewAdmin(s.store, s.txManager, logger)
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.admin.now = func() time.Time { return s.now }
}

func (s *AdminTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestAdminTestSuite(t *testing.T) {
	suite.Run(t, new(AdminTestSuite))
}

func (s *AdminTestSuite) expectTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *AdminTestSuite) TestAdd_CreatesEveryURL() {
	ctx := context.Background()
	urls := ParseURLList("https://a.example/feed | https://b.example/feed||")

	s.expectTransaction()
	s.store.EXPECT().Create(ctx, "https://a.example/feed").Return(&domain.Source{ID: 1, URL: "https://a.example/feed"}, nil)
	s.store.EXPECT().Create(ctx, "https://b.example/feed").Return(&domain.Source{ID: 2, URL: "https://b.example/feed"}, nil)

	created, err := s.admin.Add(ctx, urls)

	s.Require().NoError(err)
	s.Len(created, 2)
	s.Equal(int64(2), created[1].ID)
}

func (s *AdminTestSuite) TestAdd_RejectsInvalidURLBeforeWriting() {
	_, err := s.admin.Add(context.Background(), []string{"https://ok.example/feed", "ftp://bad"})
	s.ErrorContains(err, "scheme")

	_, err = s.admin.Add(context.Background(), nil)
	s.Error(err)
}

func (s *AdminTestSuite) TestAdd_CreateFailureAbortsBatch() {
	ctx := context.Background()

	s.expectTransaction()
	s.store.EXPECT().Create(ctx, "https://a.example/feed").Return(nil, errors.New("unique violation"))

	created, err := s.admin.Add(ctx, []string{"https://a.example/feed", "https://b.example/feed"})

	s.ErrorContains(err, "unique violation")
	s.Nil(created)
}

func (s *AdminTestSuite) TestRemove_NotFound() {
	ctx := context.Background()
	s.store.EXPECT().Delete(ctx, int64(9)).Return(domain.ErrSourceNotFound)

	s.ErrorIs(s.admin.Remove(ctx, 9), domain.ErrSourceNotFound)
}

func (s *AdminTestSuite) TestTag_TrimsLabel() {
	ctx := context.Background()
	s.store.EXPECT().SetTag(ctx, int64(3), "news").Return(nil)

	s.NoError(s.admin.Tag(ctx, 3, "  news "))
}

func (s *AdminTestSuite) TestResets() {
	ctx := context.Background()
	s.store.EXPECT().ResetAllStates(ctx, s.now).Return(int64(4), nil)
	s.store.EXPECT().ResetState(ctx, int64(2), s.now).Return(nil)
	s.store.EXPECT().ResetHistory(ctx, int64(2)).Return(nil)

	n, err := s.admin.ResetAllStates(ctx)
	s.NoError(err)
	s.Equal(int64(4), n)
	s.NoError(s.admin.ResetState(ctx, 2))
	s.NoError(s.admin.ResetIDs(ctx, 2))
}

func (s *AdminTestSuite) TestList() {
	ctx := context.Background()
	s.store.EXPECT().LoadAll(ctx).Return([]*domain.Source{{ID: 1}}, nil)

	sources, err := s.admin.List(ctx)
	s.NoError(err)
	s.Len(sources, 1)
}

func TestParseURLList(t *testing.T) {
	got := ParseURLList(" a | |b|")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split: %q", got)
	}
}
