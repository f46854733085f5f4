package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ilinovom/hh-vacancy-bot/internal/config"
	"github.com/ilinovom/hh-vacancy-bot/internal/model"
	"github.com/ilinovom/hh-vacancy-bot/internal/repository"
	"github.com/ilinovom/hh-vacancy-bot/internal/service"
	"github.com/ilinovom/hh-vacancy-bot/pkg/telegram"
)

// batchSize is how many vacancies go into one Telegram message for the
// manual commands.
const batchSize = 5

// App coordinates the Telegram command surface and the background notifier.
type App struct {
	cfg       *config.Config
	repo      repository.Storage
	tgClient  *telegram.Client
	vacancies *service.VacancyService
	notifier  *service.VacancyNotifier
}

func New(cfg *config.Config, repo repository.Storage, vacancies *service.VacancyService) *App {
	tgClient := telegram.NewClient(cfg.TelegramToken)
	return &App{
		cfg:       cfg,
		repo:      repo,
		tgClient:  tgClient,
		vacancies: vacancies,
		notifier:  service.NewVacancyNotifier(repo, tgClient, vacancies),
	}
}

// Run starts the update handler and the notifier loop and blocks until ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.setCommands(ctx)
	if err := a.tgClient.DeleteWebhook(ctx, true); err != nil {
		log.Println("delete webhook:", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.handleUpdates(ctx)
		return nil
	})
	g.Go(func() error {
		a.notifier.Run(ctx)
		return nil
	})
	return g.Wait()
}

func (a *App) handleUpdates(ctx context.Context) {
	offset := 0
	for ctx.Err() == nil {
		updates, err := a.tgClient.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Println("get updates:", err)
			time.Sleep(time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil {
				continue
			}
			a.handleMessage(ctx, u.Message)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *telegram.Message) {
	text := strings.TrimSpace(m.Text)
	switch {
	case text == "/start":
		a.reply(ctx, m.Chat.ID, lexicon["/start"])
	case text == "/help":
		a.reply(ctx, m.Chat.ID, lexicon["/help"])
	case text == "/subscribe":
		a.subscribe(ctx, m.Chat.ID)
	case text == "/unsubscribe":
		a.unsubscribe(ctx, m.Chat.ID)
	case text == "/status":
		a.status(ctx, m.Chat.ID)
	case strings.HasPrefix(text, "/set_interval"):
		a.setInterval(ctx, m.Chat.ID, text)
	case strings.HasPrefix(strings.ToLower(text), "начать"):
		a.manualUpdate(ctx, m.Chat.ID)
	case strings.HasPrefix(strings.ToLower(text), "да"):
		a.recentVacancies(ctx, m.Chat.ID)
	case strings.HasPrefix(strings.ToLower(text), "нет"):
		a.reply(ctx, m.Chat.ID, lexicon["нет"])
	default:
		a.reply(ctx, m.Chat.ID, lexicon["another"])
	}
}

func (a *App) reply(ctx context.Context, chatID int64, text string) {
	if err := a.tgClient.SendMessage(ctx, chatID, text, ""); err != nil {
		log.Println("send message:", err)
	}
}

func (a *App) subscribe(ctx context.Context, chatID int64) {
	if err := a.repo.AddUser(ctx, chatID); err != nil {
		log.Println("subscribe:", err)
		return
	}
	a.reply(ctx, chatID, "Вы успешно подписаны на обновления вакансий!")
}

func (a *App) unsubscribe(ctx context.Context, chatID int64) {
	if err := a.repo.DeleteUser(ctx, chatID); err != nil {
		log.Println("unsubscribe:", err)
		return
	}
	a.reply(ctx, chatID, "Вы отписаны от обновлений вакансий.")
}

func (a *App) status(ctx context.Context, chatID int64) {
	user, err := a.repo.GetUser(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		a.reply(ctx, chatID, "Вы не подписаны на обновления.")
		return
	}
	if err != nil {
		log.Println("status:", err)
		return
	}
	lastCheck := user.LastCheck
	if loc, err := time.LoadLocation("Europe/Moscow"); err == nil {
		lastCheck = lastCheck.In(loc)
	}
	a.reply(ctx, chatID, fmt.Sprintf(
		"Текущие настройки:\nИнтервал проверки: %d мин\nПоследняя проверка: %s",
		user.UpdateInterval, lastCheck.Format("2006-01-02 15:04:05 MST")))
}

func (a *App) setInterval(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		a.reply(ctx, chatID, "Использование: /set_interval <минуты>")
		return
	}
	interval, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		a.reply(ctx, chatID, "Использование: /set_interval <минуты>")
		return
	}
	if interval < 5 {
		a.reply(ctx, chatID, "Интервал должен быть не менее 5 минут.")
		return
	}
	if err := a.repo.UpdateUserInterval(ctx, chatID, interval); err != nil {
		log.Println("set interval:", err)
		return
	}
	a.reply(ctx, chatID, fmt.Sprintf("Интервал обновления успешно установлен на %d минут.", interval))
}

// manualUpdate runs a sync right now and reports what it added. Errors stay
// in the log; the user only ever sees the generic outcome messages.
func (a *App) manualUpdate(ctx context.Context, chatID int64) {
	a.reply(ctx, chatID, lexicon["начать"])
	added, err := a.vacancies.Update(ctx)
	if err != nil {
		log.Println("manual update:", err)
		return
	}
	if len(added) == 0 {
		a.reply(ctx, chatID, "Новых вакансий пока нет.")
		return
	}
	a.reply(ctx, chatID, fmt.Sprintf("Добавлено %d новых вакансий!", len(added)))
	a.sendBatched(ctx, chatID, added, "\n\n")
}

func (a *App) recentVacancies(ctx context.Context, chatID int64) {
	vacancies, err := a.repo.GetRecentVacancies(ctx, 10)
	if err != nil {
		log.Println("recent vacancies:", err)
		return
	}
	if len(vacancies) == 0 {
		a.reply(ctx, chatID, "Вакансий не найдено")
		return
	}
	a.sendBatched(ctx, chatID, vacancies, "\n")
}

func (a *App) sendBatched(ctx context.Context, chatID int64, vacancies []*model.Vacancy, sep string) {
	parts := make([]string, len(vacancies))
	for i, v := range vacancies {
		parts[i] = service.FormatVacancy(v)
	}
	for i := 0; i < len(parts); i += batchSize {
		end := i + batchSize
		if end > len(parts) {
			end = len(parts)
		}
		if err := a.tgClient.SendMessage(ctx, chatID, strings.Join(parts[i:end], sep), "HTML"); err != nil {
			log.Println("send vacancies:", err)
		}
	}
}

func (a *App) setCommands(ctx context.Context) {
	cmds := []telegram.BotCommand{
		{Command: "start", Description: "О боте"},
		{Command: "help", Description: "Список команд"},
		{Command: "subscribe", Description: "Подписаться на обновления"},
		{Command: "unsubscribe", Description: "Отписаться"},
		{Command: "status", Description: "Текущие настройки"},
		{Command: "set_interval", Description: "Интервал проверки в минутах"},
	}
	if err := a.tgClient.SetCommands(ctx, cmds); err != nil {
		log.Println("set commands:", err)
	}
}
