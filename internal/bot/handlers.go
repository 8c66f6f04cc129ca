package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/excel"
	"github.com/example/phonicsbot/internal/gate"
	"github.com/example/phonicsbot/pkg/models"
)

// Callback data for the menu keyboards
const (
	callbackPracticeStart = "practice_start"
	callbackShowProgress  = "show_progress"
	callbackResetConfirm  = "reset_confirm"
	callbackResetCancel   = "reset_cancel"
	callbackMainMenu      = "main_menu"

	// Answer and audio callbacks address a specific card, so the data
	// carries the plan ID and position; a press from an earlier card or a
	// double tap then no longer matches the session cursor and is dropped.
	answerPrefix = "ans"
	soundPrefix  = "snd"
)

// answerCallback encodes an outcome button for one card of a plan
func answerCallback(planID string, pos int, outcome models.Result) string {
	return fmt.Sprintf("%s:%s:%d:%s", answerPrefix, planID, pos, outcome)
}

// soundCallback encodes the hear-it button for one card of a plan
func soundCallback(planID string, pos int) string {
	return fmt.Sprintf("%s:%s:%d", soundPrefix, planID, pos)
}

// parseAnswerCallback decodes answerCallback data
func parseAnswerCallback(data string) (planID string, pos int, outcome models.Result, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != answerPrefix {
		return "", 0, "", false
	}
	pos, err := strconv.Atoi(parts[2])
	if err != nil || pos < 0 {
		return "", 0, "", false
	}
	outcome = models.Result(parts[3])
	if parts[1] == "" || !outcome.Valid() {
		return "", 0, "", false
	}
	return parts[1], pos, outcome, true
}

// parseSoundCallback decodes soundCallback data
func parseSoundCallback(data string) (planID string, pos int, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != soundPrefix || parts[1] == "" {
		return "", 0, false
	}
	pos, err := strconv.Atoi(parts[2])
	if err != nil || pos < 0 {
		return "", 0, false
	}
	return parts[1], pos, true
}

// handleCommand dispatches bot commands
func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "practice":
		b.startPractice(message.Chat.ID, message.From.ID)
	case "progress":
		b.showProgress(message.Chat.ID, message.From.ID)
	case "remind":
		b.handleRemind(message)
	case "sessionsize":
		b.handleSessionSize(message)
	case "reset":
		b.handleReset(message)
	case "budget":
		if b.isAdmin(message.From.ID) {
			b.handleBudget(message)
		} else {
			b.adminOnly(message.Chat.ID)
		}
	case "import":
		if b.isAdmin(message.From.ID) {
			b.handleImport(message)
		} else {
			b.adminOnly(message.Chat.ID)
		}
	case "nudge":
		if b.isAdmin(message.From.ID) {
			b.handleNudge(message)
		} else {
			b.adminOnly(message.Chat.ID)
		}
	default:
		msg := tgbotapi.NewMessage(message.Chat.ID, "Unknown command. Use /help for the command list.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		b.send(msg)
	}
}

func (b *Bot) adminOnly(chatID int64) {
	b.send(tgbotapi.NewMessage(chatID, "This command is only available for administrators."))
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	user, err := b.ensureUser(message.From)
	if err != nil {
		b.logger.Error("failed to create user", zap.Int64("user", message.From.ID), zap.Error(err))
		b.send(tgbotapi.NewMessage(message.Chat.ID, "Something went wrong, please try again."))
		return
	}

	text := fmt.Sprintf("Hi %s! 👋 I'm your reading helper.\n\n"+
		"We'll practice letter sounds together. Listen, say the sound out loud, "+
		"and tell me how it went.\n\n"+
		"Tap the button below when you're ready!", user.FirstName)

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	b.send(msg)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	text := "📖 Commands\n\n" +
		"/practice - Start a sound practice session\n" +
		"/progress - See your stars and streak\n" +
		"/remind on|off - Turn daily reminders on or off\n" +
		"/sessionsize N - How many sounds per session\n" +
		"/reset - Start over from the beginning\n\n" +
		"During practice:\n" +
		"✅ I said it! - You got the sound right\n" +
		"🤔 Tricky - That one was hard\n" +
		"⏭ Skip - Come back to it later\n" +
		"🔊 Hear it - Listen to the sound"

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "⬅️ Back to menu", CallbackData: callbackMainMenu}},
	})
	b.send(msg)
}

/// handleRemind toggles daily practice reminders: /remind on, /remind off,
// or /remind <hour> to move the reminder time
func (b *Bot) handleRemind(message *tgbotapi.Message) {
	user, err := b.ensureUser(message.From)
	if err != nil {
		b.logger.Error("failed to load user", zap.Int64("user", message.From.ID), zap.Error(err))
		return
	}

	arg := strings.TrimSpace(message.CommandArguments())
	switch {
	case arg == "on":
		user.NotificationEnabled = true
	case arg == "off":
		user.NotificationEnabled = false
	default:
		hour, err := strconv.Atoi(arg)
		if err != nil || hour < b.cfg.NotificationStartHour || hour > b.cfg.NotificationEndHour {
			b.send(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf(
				"Use /remind on, /remind off, or /remind <hour> (%d-%d).",
				b.cfg.NotificationStartHour, b.cfg.NotificationEndHour)))
			return
		}
		user.NotificationEnabled = true
		user.NotificationHour = hour
	}

	if err := b.userRepo.Upsert(user); err != nil {
		b.logger.Error("failed to update user", zap.Int64("user", user.ID), zap.Error(err))
		b.send(tgbotapi.NewMessage(message.Chat.ID, "Couldn't save that, please try again."))
		return
	}

	if user.NotificationEnabled {
		b.send(tgbotapi.NewMessage(message.Chat.ID,
			fmt.Sprintf("🔔 Reminders are on, around %d:00 each day.", user.NotificationHour)))
	} else {
		b.send(tgbotapi.NewMessage(message.Chat.ID, "🔕 Reminders are off."))
	}
}

// handleSessionSize sets how many items each practice session holds
func (b *Bot) handleSessionSize(message *tgbotapi.Message) {
	user, err := b.ensureUser(message.From)
	if err != nil {
		b.logger.Error("failed to load user", zap.Int64("user", message.From.ID), zap.Error(err))
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	if err != nil || n < 1 || n > b.botCfg.MaxItemsPerSession {
		b.send(tgbotapi.NewMessage(message.Chat.ID,
			fmt.Sprintf("Please give a number from 1 to %d, like /sessionsize 5.", b.botCfg.MaxItemsPerSession)))
		return
	}

	user.ItemsPerSession = n
	if err := b.userRepo.Upsert(user); err != nil {
		b.logger.Error("failed to update user", zap.Int64("user", user.ID), zap.Error(err))
		return
	}
	b.send(tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("Got it! Sessions will have %d sounds.", n)))
}

// handleReset asks for confirmation before wiping learning history
func (b *Bot) handleReset(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID,
		"⚠️ This erases all your stars and starts you over from the very first sound. Are you sure?")
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{
			{Text: "Yes, start over", CallbackData: callbackResetConfirm},
			{Text: "No, keep going", CallbackData: callbackResetCancel},
		},
	})
	b.send(msg)
}

// handleBudget reports the AI spend window. Admin only.
func (b *Bot) handleBudget(message *tgbotapi.Message) {
	start, end, spent := b.ledger.Window()
	stats := b.cache.Stats()

	text := fmt.Sprintf("💰 AI budget\n\n"+
		"Window: %s - %s\n"+
		"Spent: %d / %d units (%d remaining)\n\n"+
		"📦 Cache: %d entries, %d bytes\n"+
		"Hits: %d, misses: %d",
		start.Format("Jan 2 15:04"), end.Format("Jan 2 15:04"),
		spent, b.cfg.BudgetCapUnits, b.ledger.Remaining(),
		stats.Entries, stats.TotalBytes, stats.Hits, stats.Misses)

	b.send(tgbotapi.NewMessage(message.Chat.ID, text))
}

// handleNudge forces a reminder check outside the scheduled window:
// /nudge sends one to the admin, /nudge <userID> to a specific user
func (b *Bot) handleNudge(message *tgbotapi.Message) {
	if b.jobs == nil {
		b.send(tgbotapi.NewMessage(message.Chat.ID, "The reminder scheduler isn't running."))
		return
	}

	target := message.From.ID
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			b.send(tgbotapi.NewMessage(message.Chat.ID, "Use /nudge or /nudge <user ID>."))
			return
		}
		target = id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.jobs.RunManualCheck(ctx, target); err != nil {
		b.logger.Error("manual reminder check failed", zap.Int64("user", target), zap.Error(err))
		b.send(tgbotapi.NewMessage(message.Chat.ID, "Couldn't run the reminder check, please try again."))
		return
	}
	b.send(tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("Reminder check done for user %d.", target)))
}

// handleImport asks the admin to send a curriculum spreadsheet
func (b *Bot) handleImport(message *tgbotapi.Message) {
	b.setAwaitingUpload(message.Chat.ID, true)
	b.send(tgbotapi.NewMessage(message.Chat.ID,
		"Send the curriculum file (.xlsx or .csv). Columns: item ID, unit ID, unit name, "+
			"grapheme, phoneme, example word, example sentence, difficulty, prerequisites."))
}

// handleCurriculumUpload downloads and imports an uploaded curriculum file
func (b *Bot) handleCurriculumUpload(message *tgbotapi.Message) {
	b.setAwaitingUpload(message.Chat.ID, false)

	if !b.isAdmin(message.From.ID) {
		b.adminOnly(message.Chat.ID)
		return
	}

	path, err := b.downloadDocument(message.Document)
	if err != nil {
		b.logger.Error("failed to download curriculum file", zap.Error(err))
		b.send(tgbotapi.NewMessage(message.Chat.ID, "Couldn't download that file, please try again."))
		return
	}
	defer os.Remove(path)

	cfg := excel.DefaultImportConfig()
	cfg.FilePath = path

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := excel.ImportCurriculum(ctx, cfg)
	if err != nil {
		b.logger.Error("curriculum import failed", zap.Error(err))
		b.send(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("Import failed: %v", err)))
		return
	}

	text := fmt.Sprintf("✅ Import finished\n\nRows processed: %d\nUnits created: %d\nItems imported: %d\nSkipped: %d",
		result.TotalProcessed, result.UnitsCreated, result.ItemsImported, result.Skipped)
	if len(result.Errors) > 0 {
		shown := result.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		text += fmt.Sprintf("\n\nErrors (%d):\n%s", len(result.Errors), strings.Join(shown, "\n"))
	}
	text += "\n\nRestart the bot to load the new curriculum."
	b.send(tgbotapi.NewMessage(message.Chat.ID, text))
}

// downloadDocument fetches a Telegram document into a temp file
func (b *Bot) downloadDocument(doc *tgbotapi.Document) (string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: doc.FileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %v", err)
	}

	resp, err := http.Get(file.Link(b.cfg.TelegramToken))
	if err != nil {
		return "", fmt.Errorf("failed to download file: %v", err)
	}
	defer resp.Body.Close()

	out, err := os.CreateTemp("", "curriculum-*"+filepath.Ext(doc.FileName))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("failed to save file: %v", err)
	}
	return out.Name(), nil
}

// handleCallbackQuery handles button presses
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Acknowledge the press so the button stops spinning
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback query", zap.Error(err))
	}

	chatID := query.Message.Chat.ID
	userID := query.From.ID

	if planID, pos, outcome, ok := parseAnswerCallback(query.Data); ok {
		b.recordAnswer(chatID, userID, planID, pos, outcome)
		return
	}
	if planID, pos, ok := parseSoundCallback(query.Data); ok {
		b.sendSound(chatID, userID, planID, pos)
		return
	}

	switch query.Data {
	case callbackPracticeStart:
		b.startPractice(chatID, userID)
	case callbackShowProgress:
		b.showProgress(chatID, userID)
	case callbackResetConfirm:
		b.performReset(chatID, userID)
	case callbackResetCancel:
		b.send(tgbotapi.NewMessage(chatID, "Phew! Your stars are safe. ⭐"))
	case callbackMainMenu:
		msg := tgbotapi.NewMessage(chatID, "What would you like to do?")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		b.send(msg)
	default:
		b.logger.Warn("unknown callback data", zap.String("data", query.Data))
	}
}

// startPractice builds a session plan and presents its first item
func (b *Bot) startPractice(chatID, userID int64) {
	user, err := b.userRepo.GetByID(userID)
	size := b.botCfg.DefaultItemsPerSession
	if err == nil && user.ItemsPerSession > 0 {
		size = user.ItemsPerSession
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	plan, err := b.sessions.BuildSession(ctx, userID, size, b.now())
	if err != nil {
		b.logger.Error("failed to build session", zap.Int64("user", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "I couldn't put a session together. Has the curriculum been imported?"))
		return
	}

	ps := &practiceSession{
		Plan:    plan,
		Results: make([]models.SessionResult, 0, plan.Size()),
	}
	ps.Current, _ = b.library.Item(plan.ItemIDs[0])
	b.setSession(userID, ps)

	b.send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Let's practice %d sounds! Say each one out loud. 🎵", plan.Size())))
	b.presentItem(chatID, userID, ps)
}

// presentItem shows the current skill item with a generated example sentence
func (b *Bot) presentItem(chatID, userID int64, ps *practiceSession) {
	ps.mu.Lock()
	item := ps.Current
	pos := ps.Pos
	planID := ps.Plan.ID
	total := ps.Plan.Size()
	ps.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := b.gate.Request(ctx, gate.RequestSpec{
		ItemID:   item.ID,
		Modality: gate.ModalityExample,
		Locale:   "en-US",
	})
	sentence := ""
	if err != nil {
		b.logger.Error("example generation failed", zap.String("item", item.ID), zap.Error(err))
		sentence = b.library.FallbackText(item.ID)
	} else {
		sentence = result.Content.Text
	}

	text := fmt.Sprintf("Sound %d of %d\n\n"+
		"🔤 *%s*  says  %s\n"+
		"Like in *%s*.\n\n%s\n\nCan you say it?",
		pos+1, total, item.Grapheme, item.Phoneme, item.ExampleWord, sentence)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{
			{Text: "✅ I said it!", CallbackData: answerCallback(planID, pos, models.ResultCorrect)},
			{Text: "🤔 Tricky", CallbackData: answerCallback(planID, pos, models.ResultIncorrect)},
		},
		{
			{Text: "🔊 Hear it", CallbackData: soundCallback(planID, pos)},
			{Text: "⏭ Skip", CallbackData: answerCallback(planID, pos, models.ResultSkipped)},
		},
	})
	b.send(msg)
}

// sendSound delivers the pronunciation audio for the card the button
// belongs to. Stale presses are ignored.
func (b *Bot) sendSound(chatID, userID int64, planID string, pos int) {
	ps, ok := b.sessionFor(userID)
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "No practice going on right now. Use /practice to start!"))
		return
	}

	ps.mu.Lock()
	if !ps.onCurrentCard(planID, pos) {
		ps.mu.Unlock()
		b.logger.Debug("ignoring stale sound request",
			zap.Int64("user", userID), zap.String("plan", planID), zap.Int("pos", pos))
		return
	}
	item := ps.Current
	ps.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := b.gate.Request(ctx, gate.RequestSpec{
		ItemID:   item.ID,
		Modality: gate.ModalityAudio,
		Locale:   "en-US",
	})
	if err != nil {
		b.logger.Error("audio generation failed", zap.String("item", item.ID), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "The sound isn't available right now, sorry!"))
		return
	}

	if result.Fallback || len(result.Content.Audio) == 0 {
		// No audio budget left: spell the sound out in text instead
		b.send(tgbotapi.NewMessage(chatID,
			fmt.Sprintf("🔇 No audio right now, but remember: %s", b.library.FallbackText(item.ID))))
		return
	}

	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{
		Name:  item.ID + ".ogg",
		Bytes: result.Content.Audio,
	})
	if _, err := b.api.Send(voice); err != nil {
		b.logger.Error("failed to send voice message", zap.Error(err))
	}
}

// recordAnswer scores the card the button belongs to and moves the session
// forward. The session mutex is held across Advance, so one user's answers
// apply strictly in order; a press whose plan or position no longer matches
// the cursor (double tap, old keyboard) scores nothing.
func (b *Bot) recordAnswer(chatID, userID int64, planID string, pos int, outcome models.Result) {
	ps, ok := b.sessionFor(userID)
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "No practice going on right now. Use /practice to start!"))
		return
	}

	ps.mu.Lock()
	if !ps.onCurrentCard(planID, pos) {
		ps.mu.Unlock()
		b.logger.Debug("ignoring stale answer",
			zap.Int64("user", userID), zap.String("plan", planID), zap.Int("pos", pos))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	next, complete, err := b.sessions.Advance(ctx, ps.Plan, ps.Pos, outcome, b.now())
	if err != nil {
		item := ps.Current.ID
		ps.mu.Unlock()
		b.logger.Error("failed to record answer",
			zap.Int64("user", userID), zap.String("item", item), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "Something went wrong, let's try that sound again."))
		return
	}

	ps.Results = append(ps.Results, models.SessionResult{ItemID: ps.Current.ID, Result: outcome})
	ps.Pos++
	ps.Current = next
	ps.mu.Unlock()

	if complete {
		b.finishSession(chatID, userID, ps)
		return
	}
	b.presentItem(chatID, userID, ps)
}

// finishSession closes out the session and shows the progress summary
func (b *Bot) finishSession(chatID, userID int64, ps *practiceSession) {
	b.setSession(userID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := b.tracker.OnSessionComplete(ctx, userID, ps.Results, b.now())
	if err != nil && snap.UserID == 0 {
		b.logger.Error("failed to finish session", zap.Int64("user", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "All done! (I'll save your stars in a moment.)"))
		return
	}

	var correct int
	for _, r := range ps.Results {
		if r.Result == models.ResultCorrect {
			correct++
		}
	}

	text := fmt.Sprintf("🎉 All done! You got %d of %d sounds.\n\n"+
		"⭐ Sounds mastered: %d\n"+
		"🔥 Day streak: %d",
		correct, len(ps.Results), snap.TotalMastered, snap.CurrentStreakDays)
	if err != nil {
		// Snapshot write failed but the in-memory state is intact
		text += "\n\n(Saving your progress in the background.)"
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	b.send(msg)
}

// showProgress renders the user's progress snapshot
func (b *Bot) showProgress(chatID, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := b.tracker.Snapshot(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load progress", zap.Int64("user", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "Couldn't load your progress, please try again."))
		return
	}

	total := b.library.Len()
	text := fmt.Sprintf("⭐ Your progress\n\n"+
		"Sounds mastered: %d of %d\n"+
		"Day streak: %d 🔥\n",
		snap.TotalMastered, total, snap.CurrentStreakDays)

	if len(snap.UnlockedUnits) > 0 {
		var names []string
		for _, unitID := range snap.UnlockedUnits {
			if unit, ok := b.library.Unit(unitID); ok {
				names = append(names, unit.Name)
			}
		}
		text += "\nUnlocked: " + strings.Join(names, ", ")
	}
	if b.tracker.SyncPending(userID) {
		text += "\n\n(Saving your progress in the background.)"
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "🎵 Practice sounds", CallbackData: callbackPracticeStart}},
	})
	b.send(msg)
}

// performReset wipes the user's mastery history after confirmation
func (b *Bot) performReset(chatID, userID int64) {
	b.setSession(userID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.mastery.Reset(ctx, userID); err != nil {
		b.logger.Error("failed to reset user", zap.Int64("user", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "The reset didn't work, please try again."))
		return
	}
	if err := b.tracker.Reset(ctx, userID, b.now()); err != nil {
		b.logger.Warn("failed to reset progress snapshot", zap.Int64("user", userID), zap.Error(err))
	}

	msg := tgbotapi.NewMessage(chatID, "🌱 Fresh start! Let's learn those sounds again.")
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	b.send(msg)
}
