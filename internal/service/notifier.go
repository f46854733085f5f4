package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

// NotifierStorage is the part of the storage layer the notifier needs.
type NotifierStorage interface {
	GetAllUsers(ctx context.Context) ([]*model.User, error)
	GetNewVacancies(ctx context.Context, since time.Time) ([]*model.Vacancy, error)
	UpdateLastCheck(ctx context.Context, chatID int64, t time.Time) error
	Reconnect(ctx context.Context) error
}

// Sender delivers a formatted message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, parseMode string) error
}

// Updater triggers one incremental sync against hh.ru.
type Updater interface {
	Update(ctx context.Context) ([]*model.Vacancy, error)
}

// VacancyNotifier runs the background loop that checks, per subscriber,
// whether the polling interval elapsed, syncs the store and delivers new
// vacancies. Per-user failures are logged and never terminate the loop.
type VacancyNotifier struct {
	repo      NotifierStorage
	tg        Sender
	vacancies Updater
	running   atomic.Bool

	// Pacing between users, passes and individual sends. Fields so tests
	// can zero them.
	userDelay time.Duration
	passDelay time.Duration
	sendDelay time.Duration
}

func NewVacancyNotifier(repo NotifierStorage, tg Sender, vacancies Updater) *VacancyNotifier {
	return &VacancyNotifier{
		repo:      repo,
		tg:        tg,
		vacancies: vacancies,
		userDelay: 5 * time.Second,
		passDelay: 60 * time.Second,
		sendDelay: 500 * time.Millisecond,
	}
}

// Stop makes Run return after the current pass. Run also returns when its
// context is cancelled.
func (n *VacancyNotifier) Stop() {
	n.running.Store(false)
}

// Run loops over all subscribers until stopped. Each user whose interval has
// elapsed gets a full check-and-notify cycle; a short pause between users
// caps the rate against the Telegram and hh.ru APIs.
func (n *VacancyNotifier) Run(ctx context.Context) {
	n.running.Store(true)
	for n.running.Load() && ctx.Err() == nil {
		users, err := n.repo.GetAllUsers(ctx)
		if err != nil {
			log.Printf("[notifier] load users: %v", err)
			if !sleepCtx(ctx, n.passDelay) {
				return
			}
			continue
		}
		for _, u := range users {
			if ctx.Err() != nil {
				return
			}
			if due(u, time.Now().UTC()) {
				if err := n.checkAndNotify(ctx, u); err != nil {
					log.Printf("[notifier] user %d: %v", u.ChatID, err)
				}
			}
			if !sleepCtx(ctx, n.userDelay) {
				return
			}
		}
		if !sleepCtx(ctx, n.passDelay) {
			return
		}
	}
}

// due reports whether the user's polling interval has elapsed. LastCheck is
// already UTC-normalized by the storage layer.
func due(u *model.User, now time.Time) bool {
	return now.Sub(u.LastCheck) >= time.Duration(u.UpdateInterval)*time.Minute
}

// checkAndNotify runs one due cycle for a user: sync, query new vacancies,
// deliver, advance the checkpoint. The checkpoint is set to the cycle start
// time, not commit time, so vacancies published while the cycle runs are not
// skipped next round — and it advances even when nothing new was found.
func (n *VacancyNotifier) checkAndNotify(ctx context.Context, u *model.User) error {
	checkStart := time.Now().UTC()

	if _, err := n.vacancies.Update(ctx); err != nil {
		// The store may simply be stale; the query below still runs.
		log.Printf("[notifier] update vacancies: %v", err)
	}

	newVacancies, err := n.repo.GetNewVacancies(ctx, u.LastCheck)
	if err != nil {
		return fmt.Errorf("new vacancies: %w", err)
	}
	log.Printf("[notifier] user %d: %d new vacancies", u.ChatID, len(newVacancies))

	if len(newVacancies) > 0 {
		n.sendVacancies(ctx, u.ChatID, newVacancies)
	}
	return n.updateLastCheck(ctx, u.ChatID, checkStart)
}

func (n *VacancyNotifier) sendVacancies(ctx context.Context, chatID int64, vacancies []*model.Vacancy) {
	for _, v := range vacancies {
		if err := n.tg.SendMessage(ctx, chatID, FormatVacancy(v), "HTML"); err != nil {
			log.Printf("[notifier] send vacancy %d to %d: %v", v.ID, chatID, err)
		}
		if !sleepCtx(ctx, n.sendDelay) {
			return
		}
	}
}

// updateLastCheck advances the checkpoint, retrying exactly once through a
// reconnect when the write fails. A second failure leaves the checkpoint
// stale; the next due cycle retries naturally.
func (n *VacancyNotifier) updateLastCheck(ctx context.Context, chatID int64, t time.Time) error {
	err := n.repo.UpdateLastCheck(ctx, chatID, t)
	if err == nil {
		return nil
	}
	log.Printf("[notifier] checkpoint update for %d failed, reconnecting: %v", chatID, err)
	if rerr := n.repo.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("reconnect: %w", rerr)
	}
	if err := n.repo.UpdateLastCheck(ctx, chatID, t); err != nil {
		return fmt.Errorf("checkpoint update after reconnect: %w", err)
	}
	return nil
}

// FormatVacancy renders one vacancy as an HTML Telegram message. The
// predicted salary is shown only when no lower bound was stated upstream.
func FormatVacancy(v *model.Vacancy) string {
	var salaryInfo string
	if v.SalaryFrom != nil {
		to := "?"
		if v.SalaryTo != nil {
			to = strconv.Itoa(*v.SalaryTo)
		}
		salaryInfo = fmt.Sprintf("💵 Зарплата: %d – %s", *v.SalaryFrom, to)
	} else {
		predicted := "?"
		if v.PredictedSalary != nil {
			predicted = strconv.Itoa(*v.PredictedSalary)
		}
		salaryInfo = "💸 Примерная зарплата: " + predicted
	}

	employer := "Работодатель не указан"
	if v.Employer != nil {
		employer = *v.Employer
	}
	city := "Город не указан"
	if v.City != nil {
		city = *v.City
	}
	grade := v.Grade
	if grade == "" {
		grade = "Не определен"
	}
	url := "#"
	if v.URL != nil {
		url = *v.URL
	}

	return fmt.Sprintf("🔥 <b>%s</b>\n🏢 %s\n📍 %s\n%s\n🎯 Грейд: %s\n🔗 <a href='%s'>Подробнее</a>",
		v.Name, employer, city, salaryInfo, grade, url)
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
