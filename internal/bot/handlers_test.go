package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/phonicsbot/pkg/models"
)

func TestAnswerCallbackRoundTrip(t *testing.T) {
	data := answerCallback("plan-1", 3, models.ResultCorrect)

	planID, pos, outcome, ok := parseAnswerCallback(data)
	require.True(t, ok)
	assert.Equal(t, "plan-1", planID)
	assert.Equal(t, 3, pos)
	assert.Equal(t, models.ResultCorrect, outcome)
}

func TestSoundCallbackRoundTrip(t *testing.T) {
	data := soundCallback("plan-1", 0)

	planID, pos, ok := parseSoundCallback(data)
	require.True(t, ok)
	assert.Equal(t, "plan-1", planID)
	assert.Equal(t, 0, pos)
}

func TestParseAnswerCallbackRejectsMalformedData(t *testing.T) {
	bad := []string{
		"",
		"practice_start",
		"ans:plan-1:0",                 // missing outcome
		"ans:plan-1:0:correct:extra",   // too many fields
		"snd:plan-1:0:correct",         // wrong prefix
		"ans::0:correct",               // empty plan ID
		"ans:plan-1:x:correct",         // non-numeric position
		"ans:plan-1:-1:correct",        // negative position
		"ans:plan-1:0:maybe",           // unknown outcome
	}
	for _, data := range bad {
		_, _, _, ok := parseAnswerCallback(data)
		assert.False(t, ok, "expected %q to be rejected", data)
	}

	_, _, ok := parseSoundCallback("ans:plan-1:0")
	assert.False(t, ok)
}

func TestStaleAnswerPressDoesNotMatchCursor(t *testing.T) {
	ps := &practiceSession{
		Plan: models.SessionPlan{ID: "plan-1", ItemIDs: []string{"s", "a", "t"}},
	}

	// The keyboard for the first card addresses plan-1 position 0.
	require.True(t, ps.onCurrentCard("plan-1", 0))

	// First press scored, cursor moved on.
	ps.Pos = 1

	// A double tap on the same button must not score again.
	assert.False(t, ps.onCurrentCard("plan-1", 0))
	// A press left over from a previous session must not score either.
	assert.False(t, ps.onCurrentCard("plan-0", 1))
	// The new card's own buttons still work.
	assert.True(t, ps.onCurrentCard("plan-1", 1))
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	// Telegram caps callback data at 64 bytes; plan IDs are UUIDs.
	data := answerCallback("0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0", 99, models.ResultIncorrect)
	assert.LessOrEqual(t, len(data), 64)
}
