package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readflow/internal/domain/entity"
)

type fakeArticleRepo struct {
	existing     map[string]bool
	created      []*entity.Article
	createErr    error
	notifyStates map[int64]bool
}

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{existing: map[string]bool{}, notifyStates: map[int64]bool{}}
}

func (f *fakeArticleRepo) Create(_ context.Context, article *entity.Article) error {
	if f.createErr != nil {
		return f.createErr
	}
	article.ID = int64(len(f.created) + 1)
	f.created = append(f.created, article)
	return nil
}

func (f *fakeArticleRepo) Get(_ context.Context, _ int64) (*entity.Article, error) {
	return nil, entity.ErrNotFound
}

func (f *fakeArticleRepo) ExistsByURL(_ context.Context, url string) (bool, error) {
	return f.existing[url], nil
}

func (f *fakeArticleRepo) MarkNotificationSent(_ context.Context, id int64, sent bool) error {
	f.notifyStates[id] = sent
	return nil
}

type fakeSourceRepo struct {
	statuses  []entity.SourceStatus
	lastRunAt *time.Time
	statusErr error
}

func (f *fakeSourceRepo) Get(_ context.Context, _ int64) (*entity.Source, error) {
	return nil, entity.ErrNotFound
}

func (f *fakeSourceRepo) ListActiveDueForCrawl(_ context.Context, _ int64, _ time.Time) ([]*entity.Source, error) {
	return nil, nil
}

func (f *fakeSourceRepo) UpdateStatus(_ context.Context, _ int64, status entity.SourceStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeSourceRepo) TouchLastRunAt(_ context.Context, _ int64, t time.Time) error {
	f.lastRunAt = &t
	return nil
}

type mapFetcher struct {
	pages map[string]string
}

func (m *mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	page, ok := m.pages[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

type boolNotifier struct {
	result bool
	sent   []int64
}

func (b *boolNotifier) NotifyNewArticle(_ context.Context, _ int64, article *entity.Article) bool {
	b.sent = append(b.sent, article.ID)
	return b.result
}

func feedPage(links ...string) string {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>Feed</title>`
	for _, link := range links {
		body += "<item><title>Entry</title><link>" + link + "</link></item>"
	}
	return body + "</channel></rss>"
}

func testSource() *entity.Source {
	return &entity.Source{
		ID:       7,
		UserID:   42,
		URL:      "https://example.com/feed.xml",
		IsActive: true,
		Status:   entity.SourceStatusIdle,
	}
}

func newTestService(articles *fakeArticleRepo, sources *fakeSourceRepo, fetcher Fetcher, notifier Notifier) *Service {
	return NewService(articles, sources, fetcher,
		NewClassifier(nil), NewExtractor(), NewNormalizer(nil), notifier)
}

func TestService_ProcessSingleFeed(t *testing.T) {
	articles := newFakeArticleRepo()
	sources := &fakeSourceRepo{}
	notifier := &boolNotifier{result: true}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://example.com/feed.xml": feedPage(
			"https://example.com/a/1", "https://example.com/a/2", "https://example.com/a/3"),
		"https://example.com/a/1": articlePage("<p>" + longText() + "</p>"),
		"https://example.com/a/2": articlePage("<p>" + longText() + "</p>"),
	}}

	svc := newTestService(articles, sources, fetcher, notifier)
	settings := entity.JobSettings{MaxArticlesPerSource: 2, AILanguage: "auto"}

	err := svc.ProcessSingleFeed(context.Background(), testSource(), settings)
	require.NoError(t, err)

	require.Len(t, articles.created, 2, "quota stops processing before the third candidate")
	assert.Equal(t, "https://example.com/a/1", articles.created[0].URL)
	assert.Equal(t, "https://example.com/a/2", articles.created[1].URL)
	assert.NotEmpty(t, articles.created[0].Summary)
	assert.NotEmpty(t, articles.created[0].FormattedContent)

	assert.Equal(t, []entity.SourceStatus{
		entity.SourceStatusRunning, entity.SourceStatusCompleted,
	}, sources.statuses)
	assert.NotNil(t, sources.lastRunAt)

	assert.Equal(t, []int64{1, 2}, notifier.sent)
	assert.True(t, articles.notifyStates[1])
	assert.True(t, articles.notifyStates[2])
}

func TestService_SkipsDuplicateURLs(t *testing.T) {
	articles := newFakeArticleRepo()
	articles.existing["https://example.com/a/1"] = true
	sources := &fakeSourceRepo{}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://example.com/feed.xml": feedPage("https://example.com/a/1", "https://example.com/a/2"),
		"https://example.com/a/2":      articlePage("<p>" + longText() + "</p>"),
	}}

	svc := newTestService(articles, sources, fetcher, nil)
	settings := entity.JobSettings{MaxArticlesPerSource: 5, AILanguage: "auto"}

	err := svc.ProcessSingleFeed(context.Background(), testSource(), settings)
	require.NoError(t, err)

	require.Len(t, articles.created, 1)
	assert.Equal(t, "https://example.com/a/2", articles.created[0].URL)
}

func TestService_CandidateFailuresAreSkippedNotFatal(t *testing.T) {
	articles := newFakeArticleRepo()
	sources := &fakeSourceRepo{}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://example.com/feed.xml": feedPage(
			"https://example.com/a/unfetchable",
			"https://example.com/a/thin",
			"https://example.com/a/good"),
		"https://example.com/a/thin": "<html><body><p>Tiny.</p></body></html>",
		"https://example.com/a/good": articlePage("<p>" + longText() + "</p>"),
	}}

	svc := newTestService(articles, sources, fetcher, nil)
	settings := entity.JobSettings{MaxArticlesPerSource: 5, AILanguage: "auto"}

	err := svc.ProcessSingleFeed(context.Background(), testSource(), settings)
	require.NoError(t, err)

	require.Len(t, articles.created, 1)
	assert.Equal(t, "https://example.com/a/good", articles.created[0].URL)
	assert.Equal(t, entity.SourceStatusCompleted, sources.statuses[len(sources.statuses)-1])
}

func TestService_SourceFetchFailureIsFatal(t *testing.T) {
	articles := newFakeArticleRepo()
	sources := &fakeSourceRepo{}
	fetcher := &mapFetcher{pages: map[string]string{}}

	svc := newTestService(articles, sources, fetcher, nil)

	err := svc.ProcessSingleFeed(context.Background(), testSource(), entity.JobSettings{MaxArticlesPerSource: 5})
	require.ErrorIs(t, err, ErrFetchFailed)

	assert.Equal(t, []entity.SourceStatus{
		entity.SourceStatusRunning, entity.SourceStatusFailed,
	}, sources.statuses)
	assert.Nil(t, sources.lastRunAt)
}

func TestService_CreateRaceTreatedAsDuplicate(t *testing.T) {
	articles := newFakeArticleRepo()
	articles.createErr = fmt.Errorf("Create: %w", entity.ErrDuplicateURL)
	sources := &fakeSourceRepo{}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://example.com/feed.xml": feedPage("https://example.com/a/1"),
		"https://example.com/a/1":      articlePage("<p>" + longText() + "</p>"),
	}}

	svc := newTestService(articles, sources, fetcher, nil)

	err := svc.ProcessSingleFeed(context.Background(), testSource(), entity.JobSettings{MaxArticlesPerSource: 5})
	require.NoError(t, err, "losing the insert race is a skip, not a failure")
	assert.Empty(t, articles.created)
}

func TestService_UndeliveredNotificationRecorded(t *testing.T) {
	articles := newFakeArticleRepo()
	sources := &fakeSourceRepo{}
	notifier := &boolNotifier{result: false}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://example.com/feed.xml": feedPage("https://example.com/a/1"),
		"https://example.com/a/1":      articlePage("<p>" + longText() + "</p>"),
	}}

	svc := newTestService(articles, sources, fetcher, notifier)

	err := svc.ProcessSingleFeed(context.Background(), testSource(), entity.JobSettings{MaxArticlesPerSource: 5})
	require.NoError(t, err)

	require.Len(t, articles.created, 1)
	assert.False(t, articles.notifyStates[1])
}

func TestService_PersistFailurePropagates(t *testing.T) {
	articles := newFakeArticleRepo()
	articles.createErr = errors.New("connection refused")
	sources := &fakeSourceRepo{}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://example.com/feed.xml": feedPage("https://example.com/a/1"),
		"https://example.com/a/1":      articlePage("<p>" + longText() + "</p>"),
	}}

	svc := newTestService(articles, sources, fetcher, nil)

	err := svc.ProcessSingleFeed(context.Background(), testSource(), entity.JobSettings{MaxArticlesPerSource: 5})
	require.Error(t, err)
	assert.Equal(t, entity.SourceStatusFailed, sources.statuses[len(sources.statuses)-1])
}
