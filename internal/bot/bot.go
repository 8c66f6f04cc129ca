package bot

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/budget"
	"github.com/example/phonicsbot/internal/cache"
	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/database"
	"github.com/example/phonicsbot/internal/gate"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/internal/progress"
	"github.com/example/phonicsbot/internal/scheduler"
	"github.com/example/phonicsbot/internal/session"
	"github.com/example/phonicsbot/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// practiceSession is one user's in-flight practice run. Updates arrive on
// per-update goroutines, so the cursor state is guarded by its own mutex;
// holding it across Advance keeps one user's answers strictly sequential.
type practiceSession struct {
	mu      sync.Mutex
	Plan    models.SessionPlan
	Pos     int
	Results []models.SessionResult
	Current models.SkillItem
}

// onCurrentCard reports whether a button press targets the card now being
// shown. A double tap or a press on an earlier card carries a stale
// position and must not score anything. Callers hold ps.mu.
func (ps *practiceSession) onCurrentCard(planID string, pos int) bool {
	return ps.Plan.ID == planID && ps.Pos == pos
}

// Bot represents the Telegram bot application
type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	botCfg  *BotConfig
	logger  *zap.Logger
	library *curriculum.Library

	gate     *gate.Gate
	ledger   *budget.Ledger
	cache    *cache.Cache
	mastery  *mastery.Model
	sessions *session.Scheduler
	tracker  *progress.Tracker
	userRepo *database.UserRepository
	jobs     *scheduler.Scheduler

	adminUserIDs map[int64]bool

	mu                 sync.Mutex
	activeSessions     map[int64]*practiceSession
	awaitingFileUpload map[int64]bool
}

// New creates a new bot instance
func New(cfg *config.Config, library *curriculum.Library, g *gate.Gate, ledger *budget.Ledger,
	c *cache.Cache, m *mastery.Model, sessions *session.Scheduler, tracker *progress.Tracker,
	logger *zap.Logger) (*Bot, error) {
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if database.DB == nil {
		return nil, fmt.Errorf("database connection is not established")
	}

	bot := &Bot{
		cfg:                cfg,
		botCfg:             DefaultConfig(),
		logger:             logger,
		library:            library,
		gate:               g,
		ledger:             ledger,
		cache:              c,
		mastery:            m,
		sessions:           sessions,
		tracker:            tracker,
		userRepo:           database.NewUserRepository(),
		adminUserIDs:       make(map[int64]bool),
		activeSessions:     make(map[int64]*practiceSession),
		awaitingFileUpload: make(map[int64]bool),
	}

	if cfg.AdminUserIDs != "" {
		for _, idStr := range strings.Split(cfg.AdminUserIDs, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
			if err != nil {
				logger.Warn("invalid admin user ID", zap.String("id", idStr))
				continue
			}
			bot.adminUserIDs[id] = true
		}
	}

	return bot, nil
}

// Start initializes the Telegram API client and blocks handling updates
func (b *Bot) Start() error {
	botAPI, err := tgbotapi.NewBotAPI(b.cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("unable to create bot: %v", err)
	}

	b.api = botAPI
	b.logger.Info("authorized on Telegram", zap.String("account", botAPI.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.botCfg.UpdateTimeout

	updates := b.api.GetUpdatesChan(updateConfig)

	for update := range updates {
		go b.handleUpdate(update)
	}

	return nil
}

// Stop gracefully stops the bot
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	b.logger.Info("bot stopped")
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(userID int64, dueCount int) error {
	// For private chats the chat ID equals the user ID
	sounds := "sounds"
	if dueCount == 1 {
		sounds = "sound"
	}

	msg := tgbotapi.NewMessage(userID,
		fmt.Sprintf("🔔 You have %d %s ready to practice! Tap the button to start.", dueCount, sounds))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "🎵 Practice now", CallbackData: callbackPracticeStart}},
	})

	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send reminder", zap.Int64("user", userID), zap.Error(err))
		return err
	}
	return nil
}

// SetScheduler attaches the background scheduler once it exists. The
// scheduler takes the bot as its Notifier, so it is built after the bot
// and wired back here for the admin /nudge command.
func (b *Bot) SetScheduler(jobs *scheduler.Scheduler) {
	b.jobs = jobs
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.adminUserIDs[userID]
}

// MainMenuButtons returns the buttons of the main menu
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "🎵 Practice sounds", CallbackData: callbackPracticeStart}},
		{{Text: "⭐ My progress", CallbackData: callbackShowProgress}},
	}
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update", zap.Any("panic", r))
		}
	}()

	if update.Message != nil {
		if update.Message.IsCommand() {
			b.handleCommand(update.Message)
			return
		}

		b.mu.Lock()
		awaiting := b.awaitingFileUpload[update.Message.Chat.ID]
		b.mu.Unlock()

		if awaiting && update.Message.Document != nil {
			b.handleCurriculumUpload(update.Message)
			return
		}

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, "Use the buttons below, or /help for the command list.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		b.send(msg)
		return
	}

	if update.CallbackQuery != nil {
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

// send delivers a message, logging delivery failures
func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Error("failed to send message", zap.Error(err))
	}
}

// ensureUser loads the user record, creating it with defaults on first contact
func (b *Bot) ensureUser(from *tgbotapi.User) (*models.User, error) {
	user, err := b.userRepo.GetByID(from.ID)
	if err == nil {
		return user, nil
	}

	user = &models.User{
		ID:                  from.ID,
		FirstName:           from.FirstName,
		IsAdmin:             b.isAdmin(from.ID),
		NotificationEnabled: true,
		NotificationHour:    17, // After-school default
		ItemsPerSession:     b.botCfg.DefaultItemsPerSession,
	}
	if err := b.userRepo.Upsert(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %v", err)
	}
	return user, nil
}

// sessionFor returns the user's active practice session, if any
func (b *Bot) sessionFor(userID int64) (*practiceSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps, ok := b.activeSessions[userID]
	return ps, ok
}

func (b *Bot) setSession(userID int64, ps *practiceSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ps == nil {
		delete(b.activeSessions, userID)
	} else {
		b.activeSessions[userID] = ps
	}
}

func (b *Bot) setAwaitingUpload(chatID int64, awaiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if awaiting {
		b.awaitingFileUpload[chatID] = true
	} else {
		delete(b.awaitingFileUpload, chatID)
	}
}

// now is split out so the handlers share one clock reading per interaction
func (b *Bot) now() time.Time {
	return time.Now().UTC()
}
