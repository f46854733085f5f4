package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

// ErrNotFound is returned when a requested user is not stored.
var ErrNotFound = errors.New("user not found")

// Storage abstracts persistence of users and vacancies.
//
// InsertVacancy must be idempotent: inserting an already-known vacancy ID is
// a no-op. This is the mechanism that keeps concurrent syncs (the background
// notifier and a manually-triggered one) from producing duplicate rows.
// All timestamps returned by a Storage are UTC.
type Storage interface {
	GetAllUsers(ctx context.Context) ([]*model.User, error)
	GetUser(ctx context.Context, chatID int64) (*model.User, error)
	// AddUser subscribes a chat. Subscribing again refreshes last_check to now.
	AddUser(ctx context.Context, chatID int64) error
	DeleteUser(ctx context.Context, chatID int64) error
	UpdateUserInterval(ctx context.Context, chatID int64, minutes int) error
	UpdateLastCheck(ctx context.Context, chatID int64, t time.Time) error

	GetExistingIDs(ctx context.Context) (map[int64]struct{}, error)
	InsertVacancy(ctx context.Context, v *model.Vacancy) error
	GetNewVacancies(ctx context.Context, since time.Time) ([]*model.Vacancy, error)
	GetRecentVacancies(ctx context.Context, limit int) ([]*model.Vacancy, error)
	// GetLastPublishedTime returns the newest published_at among stored
	// vacancies, or the current UTC time when the store is empty so that a
	// fresh database does not trigger a full historical backfill.
	GetLastPublishedTime(ctx context.Context) (time.Time, error)

	// Reconnect re-establishes the underlying connection after it was lost.
	Reconnect(ctx context.Context) error
	Close()
}
