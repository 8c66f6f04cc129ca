package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/pkg/models"
)

type fakeNotifier struct {
	reminders []int // due counts, one per SendReminder call
	userIDs   []int64
}

func (n *fakeNotifier) SendReminder(userID int64, dueCount int) error {
	n.userIDs = append(n.userIDs, userID)
	n.reminders = append(n.reminders, dueCount)
	return nil
}

type fakeMasteryRepo struct{}

func (fakeMasteryRepo) GetByUser(context.Context, int64) ([]models.MasteryRecord, error) {
	return nil, nil
}
func (fakeMasteryRepo) Upsert(context.Context, *models.MasteryRecord) error { return nil }
func (fakeMasteryRepo) DeleteByUser(context.Context, int64) error           { return nil }

func testModel() *mastery.Model {
	units := []models.Unit{{ID: "u1", Name: "First sounds", Position: 1}}
	items := []models.SkillItem{
		{ID: "s", UnitID: "u1", Grapheme: "s", Phoneme: "/s/", ExampleWord: "sun", Difficulty: 1, Position: 1},
		{ID: "a", UnitID: "u1", Grapheme: "a", Phoneme: "/æ/", ExampleWord: "ant", Difficulty: 1, Position: 2},
	}
	library := curriculum.New(units, items)
	return mastery.New(config.DefaultTuning(), library, fakeMasteryRepo{}, zap.NewNop())
}

func TestRunManualCheckNotifiesWhenItemsAreDue(t *testing.T) {
	m := testModel()
	ctx := context.Background()

	// A mistake a week ago leaves the item well past its review date
	lastWeek := time.Now().UTC().Add(-7 * 24 * time.Hour)
	_, err := m.RecordOutcome(ctx, 1, "s", models.ResultIncorrect, lastWeek)
	require.NoError(t, err)
	_, err = m.RecordOutcome(ctx, 1, "a", models.ResultIncorrect, lastWeek)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	s := New(notifier, &config.Config{}, m, nil, nil, zap.NewNop())

	require.NoError(t, s.RunManualCheck(ctx, 1))
	require.Len(t, notifier.reminders, 1)
	assert.Equal(t, int64(1), notifier.userIDs[0])
	assert.Equal(t, 2, notifier.reminders[0])
}

func TestRunManualCheckStaysQuietWithNothingDue(t *testing.T) {
	m := testModel()
	notifier := &fakeNotifier{}
	s := New(notifier, &config.Config{}, m, nil, nil, zap.NewNop())

	// The user has never practiced, so no reviews are scheduled
	require.NoError(t, s.RunManualCheck(context.Background(), 1))
	assert.Empty(t, notifier.reminders)
}
