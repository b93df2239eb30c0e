package logbook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/repository"
	"github.com/hitoshi/pitlog/internal/repository/memstore"
	"github.com/hitoshi/pitlog/internal/security"
	"github.com/hitoshi/pitlog/internal/spoiler"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }
func b(v bool) *bool         { return &v }
func s(v string) *string     { return &v }

type fixture struct {
	store *memstore.Store
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.AddRound(model.Round{ID: "round-suzuka", CircuitID: "suzuka"})
	store.AddRound(model.Round{ID: "round-monza", CircuitID: "monza"})
	store.AddSession(model.Session{
		ID: "race-recent", RoundID: "round-suzuka", Type: model.SessionTypeRace,
		StartTime: testNow.Add(-48 * time.Hour), Status: model.SessionStatusCompleted,
	})
	store.AddSession(model.Session{
		ID: "race-old", RoundID: "round-suzuka", Type: model.SessionTypeRace,
		StartTime: testNow.Add(-400 * 24 * time.Hour), Status: model.SessionStatusCompleted,
	})
	store.AddGrandstand(model.Grandstand{ID: "gs-t1", CircuitID: "suzuka", Name: "T1"})
	store.AddGrandstand(model.Grandstand{ID: "gs-parabolica", CircuitID: "monza", Name: "Parabolica"})

	builder := draft.NewBuilder(store.Catalog(), security.NewTextSanitizer(), 0)
	resolver := spoiler.NewResolver(store.Catalog(), store.Logs(), nil)
	svc := NewService(store.Catalog(), store.Logs(), store.Reviews(), store.Experiences(), builder, resolver, nil)
	svc.now = func() time.Time { return testNow }
	return &fixture{store: store, svc: svc}
}

func apiError(t *testing.T, err error) *model.APIError {
	t.Helper()
	require.Error(t, err)
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "expected *model.APIError, got %T: %v", err, err)
	return apiErr
}

func TestCreateLog_RecentReviewForcedSpoiler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.CreateLog(ctx, CreateLogInput{
		UserID:     "alice",
		SessionID:  "race-recent",
		StarRating: f64(4.5),
		Review:     &draft.ReviewInput{Body: "Great race!", ContainsSpoilers: false},
	})
	require.NoError(t, err)
	require.NotNil(t, view.Review)
	assert.True(t, view.Review.ContainsSpoilers, "直近のセッションはネタバレ扱いになる")
	assert.Equal(t, 0, view.Review.LikeCount)
	assert.Equal(t, validateToday(), view.Log.DateWatched, "観戦日の既定値は作成日")

	_, err = f.svc.CreateLog(ctx, CreateLogInput{UserID: "alice", SessionID: "race-recent"})
	assert.Equal(t, model.CategoryConflict, apiError(t, err).Category)

	logs, reviews, _, _ := f.store.Counts()
	assert.Equal(t, 1, logs)
	assert.Equal(t, 1, reviews)
}

func validateToday() time.Time {
	return time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 0, 0, 0, 0, time.UTC)
}

func TestCreateLog_OldSessionKeepsRequestedFlag(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.CreateLog(context.Background(), CreateLogInput{
		UserID:    "alice",
		SessionID: "race-old",
		Review:    &draft.ReviewInput{Body: "<p>Classic</p>", Language: "en-gb"},
	})
	require.NoError(t, err)
	assert.False(t, view.Review.ContainsSpoilers)
	assert.Equal(t, "Classic", view.Review.Body)
	assert.Equal(t, "en-GB", view.Review.Language)
}

func TestCreateLog_SessionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateLog(context.Background(), CreateLogInput{UserID: "alice", SessionID: "nope"})
	assert.Equal(t, model.ErrCodeSessionNotFound, apiError(t, err).Code)
}

func TestCreateLog_ReportsEveryViolation(t *testing.T) {
	f := newFixture(t)
	future := testNow.AddDate(0, 0, 5).Format(model.DateLayout)

	_, err := f.svc.CreateLog(context.Background(), CreateLogInput{
		UserID:           "alice",
		SessionID:        "race-old",
		Attended:         true,
		StarRating:       f64(4.3),
		ExcitementRating: i(12),
		DateWatched:      &future,
		Review:           &draft.ReviewInput{Body: "   "},
		Experience: &draft.ExperienceInput{
			GrandstandID: s("gs-parabolica"),
			VenueRating:  i(6),
		},
	})
	apiErr := apiError(t, err)
	assert.Equal(t, model.CategoryValidation, apiErr.Category)

	var fields []string
	for _, fe := range apiErr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{
		"date_watched",
		"excitement_rating",
		"experience.grandstand_id",
		"experience.venue_rating",
		"review.body",
		"star_rating",
	}, fields)

	logs, _, _, _ := f.store.Counts()
	assert.Zero(t, logs, "検証エラー時は何も書き込まない")
}

func TestCreateLog_ExperienceIgnoredWhenNotAttended(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.CreateLog(context.Background(), CreateLogInput{
		UserID:     "alice",
		SessionID:  "race-old",
		Attended:   false,
		Experience: &draft.ExperienceInput{VenueRating: i(6)},
	})
	require.NoError(t, err, "未観戦の体験は検証もされない")
	assert.Nil(t, view.Experience)
	_, _, experiences, _ := f.store.Counts()
	assert.Zero(t, experiences)
}

func TestCreateLog_WithExperience(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.CreateLog(context.Background(), CreateLogInput{
		UserID:    "alice",
		SessionID: "race-old",
		Attended:  true,
		Experience: &draft.ExperienceInput{
			GrandstandID:    s("gs-t1"),
			SeatDescription: "Row 12",
			VenueRating:     i(5),
			PhotoURL:        "https://images.example.com/t1.jpg",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, view.Experience)
	assert.Equal(t, view.Log.ID, view.Experience.LogID)
	assert.Equal(t, "gs-t1", *view.Experience.GrandstandID)

	got, err := f.svc.GetLogForUserAndSession(context.Background(), "alice", "race-old")
	require.NoError(t, err)
	require.NotNil(t, got.Experience)
	assert.Equal(t, 5, *got.Experience.VenueRating)
}

func TestGetLog_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetLog(context.Background(), "missing", "alice", false)
	assert.Equal(t, model.CategoryNotFound, apiError(t, err).Category)

	_, err = f.svc.GetLogForUserAndSession(context.Background(), "alice", "race-old")
	assert.Equal(t, model.CategoryNotFound, apiError(t, err).Category)
}

func TestUpdateLog_PartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{
		UserID: "alice", SessionID: "race-old", StarRating: f64(3), ExcitementRating: i(6), Liked: true,
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateLog(ctx, created.Log.ID, "alice", LogPatch{StarRating: f64(4.5)})
	require.NoError(t, err)
	assert.Equal(t, 4.5, *updated.Log.StarRating)
	assert.Equal(t, 6, *updated.Log.ExcitementRating, "未指定の項目は変更されない")
	assert.True(t, updated.Log.Liked)

	updated, err = f.svc.UpdateLog(ctx, created.Log.ID, "alice", LogPatch{ClearExcitementRating: true, Liked: b(false)})
	require.NoError(t, err)
	assert.Nil(t, updated.Log.ExcitementRating)
	assert.False(t, updated.Log.Liked)
	assert.Equal(t, 4.5, *updated.Log.StarRating)
}

func TestUpdateLog_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{UserID: "alice", SessionID: "race-old"})
	require.NoError(t, err)

	_, err = f.svc.UpdateLog(ctx, created.Log.ID, "bob", LogPatch{Liked: b(true)})
	assert.Equal(t, model.CategoryForbidden, apiError(t, err).Category)

	_, err = f.svc.UpdateLog(ctx, "missing", "alice", LogPatch{})
	assert.Equal(t, model.CategoryNotFound, apiError(t, err).Category)

	_, err = f.svc.UpdateLog(ctx, created.Log.ID, "alice", LogPatch{StarRating: f64(7)})
	assert.Equal(t, model.CategoryValidation, apiError(t, err).Category)
}

func TestUpdateLog_UnattendDropsExperience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{
		UserID: "alice", SessionID: "race-old", Attended: true,
		Experience: &draft.ExperienceInput{SeatDescription: "Hairpin"},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Experience)

	updated, err := f.svc.UpdateLog(ctx, created.Log.ID, "alice", LogPatch{Attended: b(false)})
	require.NoError(t, err)
	assert.Nil(t, updated.Experience)
}

func TestDeleteLog_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{
		UserID: "alice", SessionID: "race-old", Attended: true,
		Review:     &draft.ReviewInput{Body: "Wet race"},
		Experience: &draft.ExperienceInput{SeatDescription: "S curves"},
	})
	require.NoError(t, err)
	_, err = f.store.Likes().Like(ctx, "bob", created.Review.ID, testNow)
	require.NoError(t, err)

	err = f.svc.DeleteLog(ctx, created.Log.ID, "bob")
	assert.Equal(t, model.CategoryForbidden, apiError(t, err).Category)

	require.NoError(t, f.svc.DeleteLog(ctx, created.Log.ID, "alice"))

	logs, reviews, experiences, likes := f.store.Counts()
	assert.Zero(t, logs)
	assert.Zero(t, reviews)
	assert.Zero(t, experiences)
	assert.Zero(t, likes)

	rv, err := f.store.Reviews().FindByID(ctx, created.Review.ID)
	require.NoError(t, err)
	assert.Nil(t, rv)

	err = f.svc.DeleteLog(ctx, created.Log.ID, "alice")
	assert.Equal(t, model.CategoryNotFound, apiError(t, err).Category, "存在しない記録の削除はNotFound")
}

func TestUpdateExperience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{
		UserID: "alice", SessionID: "race-old", Attended: true,
		Experience: &draft.ExperienceInput{SeatDescription: "Row 1", VenueRating: i(2)},
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateExperience(ctx, created.Log.ID, "alice", draft.ExperienceInput{
		SeatDescription: "Row 2", VenueRating: i(4), GrandstandID: s("gs-t1"),
	})
	require.NoError(t, err)
	assert.Equal(t, created.Experience.ID, updated.Experience.ID)
	assert.Equal(t, "Row 2", updated.Experience.SeatDescription)
	assert.Equal(t, 4, *updated.Experience.VenueRating)

	_, err = f.svc.UpdateExperience(ctx, created.Log.ID, "alice", draft.ExperienceInput{GrandstandID: s("gs-parabolica")})
	assert.Equal(t, model.CategoryValidation, apiError(t, err).Category)

	_, err = f.svc.UpdateExperience(ctx, created.Log.ID, "bob", draft.ExperienceInput{})
	assert.Equal(t, model.CategoryForbidden, apiError(t, err).Category)

	watched, err := f.svc.CreateLog(ctx, CreateLogInput{UserID: "alice", SessionID: "race-recent"})
	require.NoError(t, err)
	_, err = f.svc.UpdateExperience(ctx, watched.Log.ID, "alice", draft.ExperienceInput{})
	assert.Equal(t, model.ErrCodeExperienceNotFound, apiError(t, err).Code)
}

func TestCreateLog_MalformedDateReportedWithOtherViolations(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateLog(context.Background(), CreateLogInput{
		UserID:           "alice",
		SessionID:        "race-old",
		StarRating:       f64(7),
		ExcitementRating: i(42),
		DateWatched:      s("yesterday"),
		Review:           &draft.ReviewInput{Body: ""},
	})
	apiErr := apiError(t, err)
	assert.Equal(t, model.CategoryValidation, apiErr.Category)

	var fields []string
	for _, fe := range apiErr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{"date_watched", "excitement_rating", "review.body", "star_rating"}, fields)
}

func TestUpdateLog_DateWatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{UserID: "alice", SessionID: "race-old"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateLog(ctx, created.Log.ID, "alice", LogPatch{DateWatched: s("2025-05-25")})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), updated.Log.DateWatched)

	_, err = f.svc.UpdateLog(ctx, created.Log.ID, "alice", LogPatch{DateWatched: s("25/05/2025"), StarRating: f64(9)})
	apiErr := apiError(t, err)
	require.Len(t, apiErr.Fields, 2)
	assert.Equal(t, "date_watched", apiErr.Fields[0].Field)
	assert.Equal(t, "star_rating", apiErr.Fields[1].Field)

	got, err := f.svc.GetLog(ctx, created.Log.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), got.Log.DateWatched, "検証エラー時は変更しない")
}

func TestGetLog_ShieldsOtherUsersSpoilerReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateLog(ctx, CreateLogInput{
		UserID:    "alice",
		SessionID: "race-recent",
		Review:    &draft.ReviewInput{Body: "Safety car decided it"},
	})
	require.NoError(t, err)
	require.True(t, created.Review.ContainsSpoilers)

	tests := []struct {
		name       string
		readerID   string
		reveal     bool
		wantBody   string
		wantHidden bool
	}{
		{"所有者", "alice", false, "Safety car decided it", false},
		{"未記録の閲覧者", "bob", false, "", true},
		{"一時表示の要求", "bob", true, "Safety car decided it", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.svc.GetLog(ctx, created.Log.ID, tt.readerID, tt.reveal)
			require.NoError(t, err)
			require.NotNil(t, view.Review)
			assert.Equal(t, tt.wantBody, view.Review.Body)
			assert.Equal(t, tt.wantHidden, view.Review.BodyHidden)
			assert.Equal(t, created.Log.StarRating, view.Log.StarRating)
		})
	}

	_, err = f.svc.CreateLog(ctx, CreateLogInput{UserID: "bob", SessionID: "race-recent"})
	require.NoError(t, err)
	view, err := f.svc.GetLog(ctx, created.Log.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, "Safety car decided it", view.Review.Body, "記録後は常に表示")
}

func TestCreateLog_ConcurrentSamePairOneWins(t *testing.T) {
	f := newFixture(t)
	const workers = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateLog(context.Background(), CreateLogInput{UserID: "alice", SessionID: "race-old"})
			mu.Lock()
			defer mu.Unlock()
			var apiErr *model.APIError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &apiErr) && apiErr.Category == model.CategoryConflict:
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
	logs, _, _, _ := f.store.Counts()
	assert.Equal(t, 1, logs)
}

// staleLogs は事前確認をすり抜けた競合を再現するため、重複確認で常に未記録を返す。
type staleLogs struct {
	repository.LogRepository
}

func (staleLogs) FindByUserAndSession(context.Context, string, string) (*model.Log, error) {
	return nil, nil
}

func TestCreateLog_StoreDuplicateMapsToConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	builder := draft.NewBuilder(f.store.Catalog(), security.NewTextSanitizer(), 0)
	resolver := spoiler.NewResolver(f.store.Catalog(), f.store.Logs(), nil)
	svc := NewService(f.store.Catalog(), staleLogs{f.store.Logs()}, f.store.Reviews(), f.store.Experiences(), builder, resolver, nil)
	svc.now = func() time.Time { return testNow }

	_, err := svc.CreateLog(ctx, CreateLogInput{UserID: "alice", SessionID: "race-old"})
	require.NoError(t, err)

	_, err = svc.CreateLog(ctx, CreateLogInput{
		UserID: "alice", SessionID: "race-old",
		Review: &draft.ReviewInput{Body: "second attempt"},
	})
	apiErr := apiError(t, err)
	assert.Equal(t, model.CategoryConflict, apiErr.Category)
	assert.Equal(t, model.ErrCodeDuplicateLog, apiErr.Code)

	logs, reviews, _, _ := f.store.Counts()
	assert.Equal(t, 1, logs)
	assert.Zero(t, reviews, "競合時はレビューも書き込まない")
}
