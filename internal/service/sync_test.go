package service

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/fetcher"
	"feedsync/internal/service/mocks"
	"feedsync/testdata/utils"
)

const (
	testOwner   = "owner-1"
	testFeedURL = "https://example.com/feed.xml"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	sources   *mocks.MockSourceStore
	articles  *mocks.MockArticleStore
	fetch     *mocks.MockFetcher
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *SyncService
	cfg     config.SyncConfig
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.sources = mocks.NewMockSourceStore(s.ctrl)
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.fetch = mocks.NewMockFetcher(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.SyncConfig{
		Workers:          5,
		RetentionCap:     100,
		FailureThreshold: 5,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewSyncService(
		s.sources,
		s.articles,
		s.fetch,
		s.txManager,
		s.publisher,
		s.logger,
		s.cfg,
	)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) newSource() *domain.Source {
	return &domain.Source{
		ID:      1,
		OwnerID: testOwner,
		FeedURL: testFeedURL,
		Title:   "Old Title",
		Kind:    domain.KindPlainFeed,
	}
}

func (s *SyncServiceTestSuite) expectTransaction(ctx context.Context) {
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func rssBody(items string) []byte {
	return []byte(`<rss version="2.0"><channel><title>Feed Title</title><link>http://example.com</link>` + items + `</channel></rss>`)
}

func (s *SyncServiceTestSuite) TestSyncSource_NotFound() {
	ctx := context.Background()

	s.sources.EXPECT().GetByID(ctx, int64(9), testOwner).Return(nil, domain.ErrSourceNotFound)

	result, err := s.service.SyncSource(ctx, 9, testOwner)

	s.ErrorIs(err, domain.ErrSourceNotFound)
	s.Nil(result)
}

func (s *SyncServiceTestSuite) TestSyncSource_PausedIsNoOp() {
	ctx := context.Background()
	src := s.newSource()
	src.IsPaused = true

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(&domain.SyncResult{}, result)
}

func (s *SyncServiceTestSuite) TestSyncSource_NotModifiedShortCircuit() {
	ctx := context.Background()
	src := s.newSource()
	src.ETag = utils.Ptr(`"v1"`)
	src.ConsecutiveFailures = 3
	src.LastError = utils.Ptr("old failure")

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, fetcher.Request{URL: testFeedURL, ETag: src.ETag}).Return(
		&fetcher.Result{StatusCode: http.StatusNotModified, NotModified: true}, nil,
	)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal(0, updated.ConsecutiveFailures)
			s.Nil(updated.LastError)
			s.NotNil(updated.LastSyncAt)
			return nil
		},
	)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(&domain.SyncResult{}, result)
}

func (s *SyncServiceTestSuite) TestSyncSource_NewArticles() {
	ctx := context.Background()
	src := s.newSource()

	body := rssBody(`<item><guid>p1</guid><title>Hello</title><link>http://x/1</link><description>Sum</description></item>`)

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, ETag: `"v2"`, Body: body}, nil,
	)
	s.expectTransaction(ctx)

	s.articles.EXPECT().GetBySourceAndExternalID(ctx, src.ID, "p1").Return(nil, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, a *domain.Article) error {
			s.Equal(domain.ArticleID(testFeedURL, "p1"), a.ID)
			s.Equal(src.ID, a.SourceID)
			s.Equal("Hello", a.Title)
			s.Equal("hello sum sum", a.SearchDigest)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), true).Return(nil)

	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(1, nil)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal("Feed Title", updated.Title)
			s.Equal(utils.Ptr(`"v2"`), updated.ETag)
			s.Equal(0, updated.ConsecutiveFailures)
			return nil
		},
	)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(1, result.NewArticles)
	s.Equal(0, result.Updated)
}

func (s *SyncServiceTestSuite) TestSyncSource_UnchangedIsIdempotent() {
	ctx := context.Background()
	src := s.newSource()

	body := rssBody(`<item><guid>p1</guid><title>Hello</title><description>Sum</description></item>`)

	stored := &domain.Article{
		ID:         domain.ArticleID(testFeedURL, "p1"),
		SourceID:   src.ID,
		ExternalID: "p1",
		Title:      "Hello",
		Summary:    utils.Ptr("Sum"),
		Content:    utils.Ptr("Sum"),
	}

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().GetBySourceAndExternalID(ctx, src.ID, "p1").Return(stored, nil)
	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(1, nil)
	s.sources.EXPECT().Update(ctx, src).Return(nil)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(&domain.SyncResult{}, result)
}

func (s *SyncServiceTestSuite) TestSyncSource_ChangeDetection() {
	ctx := context.Background()
	src := s.newSource()

	body := rssBody(`<item><guid>p1</guid><title>B</title></item>`)

	stored := &domain.Article{
		ID:         domain.ArticleID(testFeedURL, "p1"),
		SourceID:   src.ID,
		ExternalID: "p1",
		Title:      "A",
	}

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().GetBySourceAndExternalID(ctx, src.ID, "p1").Return(stored, nil)
	s.articles.EXPECT().Update(ctx, stored).DoAndReturn(
		func(_ context.Context, a *domain.Article) error {
			s.Equal("B", a.Title)
			s.Equal("b", a.SearchDigest)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, stored, false).Return(nil)
	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(1, nil)
	s.sources.EXPECT().Update(ctx, src).Return(nil)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(0, result.NewArticles)
	s.Equal(1, result.Updated)
}

func (s *SyncServiceTestSuite) TestSyncSource_FetchErrorIncrementsFailures() {
	ctx := context.Background()
	src := s.newSource()
	src.ConsecutiveFailures = 1

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		nil, &domain.FetchError{URL: testFeedURL, Err: context.DeadlineExceeded},
	)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal(2, updated.ConsecutiveFailures)
			s.NotNil(updated.LastError)
			return nil
		},
	)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.Error(err)
	s.Nil(result)

	var fetchErr *domain.FetchError
	s.ErrorAs(err, &fetchErr)
}

func (s *SyncServiceTestSuite) TestSyncSource_HTTPErrorStatus() {
	ctx := context.Background()
	src := s.newSource()

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusInternalServerError}, nil,
	)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal(1, updated.ConsecutiveFailures)
			return nil
		},
	)

	_, err := s.service.SyncSource(ctx, src.ID, testOwner)

	var fetchErr *domain.FetchError
	s.ErrorAs(err, &fetchErr)
	s.Equal(http.StatusInternalServerError, fetchErr.StatusCode)
}

func (s *SyncServiceTestSuite) TestSyncSource_UnparsableBody() {
	ctx := context.Background()
	src := s.newSource()

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: []byte("<html>nope</html>")}, nil,
	)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal(1, updated.ConsecutiveFailures)
			return nil
		},
	)

	_, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.ErrorIs(err, domain.ErrUnparsableContent)
}

func (s *SyncServiceTestSuite) TestSyncSource_PruneOverCap() {
	ctx := context.Background()
	src := s.newSource()

	body := rssBody(`<item><guid>p1</guid><title>Hello</title></item>`)

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().GetBySourceAndExternalID(ctx, src.ID, "p1").Return(nil, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), true).Return(nil)

	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(s.cfg.RetentionCap+7, nil)
	s.articles.EXPECT().PruneOldest(ctx, src.ID, s.cfg.RetentionCap).Return(int64(7), nil)
	s.sources.EXPECT().Update(ctx, src).Return(nil)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(1, result.NewArticles)
}

func (s *SyncServiceTestSuite) TestSyncSource_PruneErrorIsBestEffort() {
	ctx := context.Background()
	src := s.newSource()

	body := rssBody(``)

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(s.cfg.RetentionCap+1, nil)
	s.articles.EXPECT().PruneOldest(ctx, src.ID, s.cfg.RetentionCap).Return(int64(0), context.DeadlineExceeded)
	s.sources.EXPECT().Update(ctx, src).Return(nil)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(&domain.SyncResult{}, result)
}

func (s *SyncServiceTestSuite) TestSyncSource_ValidatorFallback() {
	ctx := context.Background()
	src := s.newSource()
	src.ETag = utils.Ptr(`"old"`)
	src.LastModified = utils.Ptr("Mon, 01 Jan 2024 00:00:00 GMT")

	body := rssBody(``)

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	// Response carries no validators; the previous ones are kept.
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(0, nil)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal(utils.Ptr(`"old"`), updated.ETag)
			s.Equal(utils.Ptr("Mon, 01 Jan 2024 00:00:00 GMT"), updated.LastModified)
			return nil
		},
	)

	result, err := s.service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(&domain.SyncResult{}, result)
}

func (s *SyncServiceTestSuite) TestSyncSource_NilPublisher() {
	ctx := context.Background()
	src := s.newSource()

	service := NewSyncService(s.sources, s.articles, s.fetch, s.txManager, nil, s.logger, s.cfg)

	body := rssBody(`<item><guid>p1</guid><title>Hello</title></item>`)

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().GetBySourceAndExternalID(ctx, src.ID, "p1").Return(nil, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(1, nil)
	s.sources.EXPECT().Update(ctx, src).Return(nil)

	result, err := service.SyncSource(ctx, src.ID, testOwner)

	s.NoError(err)
	s.Equal(1, result.NewArticles)
}

func (s *SyncServiceTestSuite) TestSyncSource_KindRefinedFromParse() {
	ctx := context.Background()
	src := s.newSource()

	body := rssBody(`<item><guid>ep1</guid><title>Ep 1</title><enclosure url="http://pod/1.mp3" type="audio/mpeg"/></item>`)

	s.sources.EXPECT().GetByID(ctx, src.ID, testOwner).Return(src, nil)
	s.fetch.EXPECT().Fetch(ctx, gomock.Any()).Return(
		&fetcher.Result{StatusCode: http.StatusOK, Body: body}, nil,
	)
	s.expectTransaction(ctx)
	s.articles.EXPECT().GetBySourceAndExternalID(ctx, src.ID, "ep1").Return(nil, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), true).Return(nil)
	s.articles.EXPECT().CountBySource(ctx, src.ID).Return(1, nil)
	s.sources.EXPECT().Update(ctx, src).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal(domain.KindPodcastFeed, updated.Kind)
			return nil
		},
	)

	_, err := s.service.SyncSource(ctx, src.ID, testOwner)
	s.NoError(err)
}
