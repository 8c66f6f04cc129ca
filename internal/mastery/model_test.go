package mastery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/pkg/models"
)

type fakeRepo struct {
	records   map[int64][]models.MasteryRecord
	upsertErr error
	upserts   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[int64][]models.MasteryRecord)}
}

func (r *fakeRepo) GetByUser(_ context.Context, userID int64) ([]models.MasteryRecord, error) {
	return r.records[userID], nil
}

func (r *fakeRepo) Upsert(_ context.Context, rec *models.MasteryRecord) error {
	r.upserts++
	return r.upsertErr
}

func (r *fakeRepo) DeleteByUser(_ context.Context, userID int64) error {
	delete(r.records, userID)
	return nil
}

func testLibrary() *curriculum.Library {
	units := []models.Unit{
		{ID: "u1", Name: "First sounds", Position: 1},
		{ID: "u2", Name: "Digraphs", Position: 2, Prerequisites: []string{"u1"}},
	}
	items := []models.SkillItem{
		{ID: "s", UnitID: "u1", Grapheme: "s", Phoneme: "/s/", ExampleWord: "sun", Difficulty: 1, Position: 1},
		{ID: "a", UnitID: "u1", Grapheme: "a", Phoneme: "/æ/", ExampleWord: "ant", Difficulty: 1, Position: 2},
		{ID: "t", UnitID: "u1", Grapheme: "t", Phoneme: "/t/", ExampleWord: "top", Difficulty: 2, Position: 3},
		{ID: "sh", UnitID: "u2", Grapheme: "sh", Phoneme: "/ʃ/", ExampleWord: "ship", Difficulty: 3,
			Position: 4, Prerequisites: []string{"s", "t"}},
	}
	return curriculum.New(units, items)
}

func newTestModel(repo Repository) *Model {
	return New(config.DefaultTuning(), testLibrary(), repo, zap.NewNop())
}

var day0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestCorrectGrowsIntervalAndEase(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	rec, err := m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.CorrectStreak)
	assert.Equal(t, 1, rec.AttemptCount)
	assert.InDelta(t, 2.6, rec.EaseFactor, 1e-9)
	assert.Equal(t, 1.0, rec.IntervalDays, "first interval is the floor")
	assert.Equal(t, day0.Add(24*time.Hour), rec.NextDueAt)
	assert.False(t, rec.NextDueAt.Before(rec.LastSeenAt))

	// Second correct review: the interval multiplies by the ease factor
	rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, rec.NextDueAt)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CorrectStreak)
	assert.Greater(t, rec.IntervalDays, 2.0)
}

func TestIncorrectResetsStreakAndShrinksEase(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	var rec models.MasteryRecord
	var err error
	asOf := day0
	for i := 0; i < 3; i++ {
		rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, asOf)
		require.NoError(t, err)
		asOf = rec.NextDueAt
	}
	require.Equal(t, 3, rec.CorrectStreak)
	easeBefore := rec.EaseFactor

	rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultIncorrect, asOf)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.CorrectStreak, "any incorrect result resets the streak")
	assert.Less(t, rec.EaseFactor, easeBefore, "incorrect never increases ease")
	assert.Equal(t, 1.0, rec.IntervalDays, "interval collapses to the floor")
	assert.Equal(t, asOf.Add(24*time.Hour), rec.NextDueAt)
}

func TestEaseStaysWithinBounds(t *testing.T) {
	tuning := config.DefaultTuning()
	m := New(tuning, testLibrary(), newFakeRepo(), zap.NewNop())
	ctx := context.Background()

	asOf := day0
	var rec models.MasteryRecord
	var err error
	for i := 0; i < 20; i++ {
		rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, asOf)
		require.NoError(t, err)
		asOf = asOf.Add(time.Hour)
	}
	assert.Equal(t, tuning.MaxEase, rec.EaseFactor)

	for i := 0; i < 20; i++ {
		rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultIncorrect, asOf)
		require.NoError(t, err)
		asOf = asOf.Add(time.Hour)
	}
	assert.Equal(t, tuning.MinEase, rec.EaseFactor)
}

func TestSkippedLeavesProficiencyUntouched(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	rec, err := m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0)
	require.NoError(t, err)
	streak, ease := rec.CorrectStreak, rec.EaseFactor

	rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultSkipped, day0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, streak, rec.CorrectStreak)
	assert.Equal(t, ease, rec.EaseFactor)
	assert.Equal(t, models.ResultSkipped, rec.LastResult)
	assert.Equal(t, 2, rec.AttemptCount)
	assert.Equal(t, day0.Add(time.Hour).Add(24*time.Hour), rec.NextDueAt)
}

func TestDueItemsOrdering(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	// "s" answered long ago (very overdue), "a" and "t" due at the same
	// moment but with different difficulty.
	_, err := m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0.Add(-72*time.Hour))
	require.NoError(t, err)
	_, err = m.RecordOutcome(ctx, 1, "t", models.ResultCorrect, day0.Add(-24*time.Hour))
	require.NoError(t, err)
	_, err = m.RecordOutcome(ctx, 1, "a", models.ResultCorrect, day0.Add(-24*time.Hour))
	require.NoError(t, err)

	due, err := m.DueItems(ctx, 1, day0)
	require.NoError(t, err)

	assert.Equal(t, []string{"s", "a", "t"}, due,
		"most overdue first, then easier before harder")
}

func TestDueItemsExcludesNotYetDue(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	rec, err := m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0)
	require.NoError(t, err)

	due, err := m.DueItems(ctx, 1, day0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = m.DueItems(ctx, 1, rec.NextDueAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"s"}, due, "an item due exactly now is included")
}

func TestDueItemsExcludesUnmetPrerequisites(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	// "sh" requires "s" and "t" mastered (streak >= 3). Give "sh" an
	// exposure so it has an overdue record, and "s"/"t" only one correct
	// answer each.
	_, err := m.RecordOutcome(ctx, 1, "sh", models.ResultCorrect, day0.Add(-96*time.Hour))
	require.NoError(t, err)
	_, err = m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = m.RecordOutcome(ctx, 1, "t", models.ResultCorrect, day0.Add(-48*time.Hour))
	require.NoError(t, err)

	due, err := m.DueItems(ctx, 1, day0)
	require.NoError(t, err)
	assert.NotContains(t, due, "sh", "overdue but locked items must be excluded")

	// Master both prerequisites; "sh" becomes eligible.
	for _, id := range []string{"s", "t"} {
		for i := 0; i < 3; i++ {
			_, err = m.RecordOutcome(ctx, 1, id, models.ResultCorrect, day0.Add(-time.Duration(40-i)*time.Hour))
			require.NoError(t, err)
		}
	}
	due, err = m.DueItems(ctx, 1, day0.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, due, "sh")
}

func TestUnseenItemsRespectPrerequisitesAndOrder(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	unseen, err := m.UnseenItems(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "a", "t"}, unseen,
		"sh is locked behind unmastered prerequisites")

	// Seeing "s" removes it from the unseen list
	_, err = m.RecordOutcome(ctx, 1, "s", models.ResultIncorrect, day0)
	require.NoError(t, err)
	unseen, err = m.UnseenItems(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "t"}, unseen)
}

func TestPersistenceFailureKeepsInMemoryState(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = errors.New("store unavailable")
	m := newTestModel(repo)
	ctx := context.Background()

	rec, err := m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0)
	require.NoError(t, err, "a failed write-through is not an outcome error")
	assert.Equal(t, 1, rec.CorrectStreak)

	// The in-memory record carries forward
	rec, err = m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CorrectStreak)
}

func TestResetClearsUserState(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	_, err := m.RecordOutcome(ctx, 1, "s", models.ResultCorrect, day0)
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx, 1))

	records, err := m.Records(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInvalidInputsRejected(t *testing.T) {
	m := newTestModel(newFakeRepo())
	ctx := context.Background()

	_, err := m.RecordOutcome(ctx, 1, "s", models.Result("maybe"), day0)
	assert.Error(t, err)

	_, err = m.RecordOutcome(ctx, 1, "no-such-item", models.ResultCorrect, day0)
	assert.Error(t, err)
}
