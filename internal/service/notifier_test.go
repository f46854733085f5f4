package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

type fakeNotifierRepo struct {
	users         []*model.User
	newVacancies  []*model.Vacancy
	newSince      []time.Time
	checkpoints   map[int64]time.Time
	updateFails   int // UpdateLastCheck calls left to fail
	reconnects    int
	reconnectErr  error
	onGetAllUsers func()
}

var _ NotifierStorage = (*fakeNotifierRepo)(nil)

func (f *fakeNotifierRepo) GetAllUsers(ctx context.Context) ([]*model.User, error) {
	if f.onGetAllUsers != nil {
		f.onGetAllUsers()
	}
	return f.users, nil
}

func (f *fakeNotifierRepo) GetNewVacancies(ctx context.Context, since time.Time) ([]*model.Vacancy, error) {
	f.newSince = append(f.newSince, since)
	return f.newVacancies, nil
}

func (f *fakeNotifierRepo) UpdateLastCheck(ctx context.Context, chatID int64, t time.Time) error {
	if f.updateFails > 0 {
		f.updateFails--
		return errors.New("connection lost")
	}
	if f.checkpoints == nil {
		f.checkpoints = map[int64]time.Time{}
	}
	f.checkpoints[chatID] = t
	return nil
}

func (f *fakeNotifierRepo) Reconnect(ctx context.Context) error {
	f.reconnects++
	return f.reconnectErr
}

type sentMessage struct {
	chatID    int64
	text      string
	parseMode string
}

type fakeSender struct {
	sent      []sentMessage
	failFirst bool
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, parseMode string) error {
	fail := f.failFirst && len(f.sent) == 0
	f.sent = append(f.sent, sentMessage{chatID, text, parseMode})
	if fail {
		return errors.New("telegram unavailable")
	}
	return nil
}

type fakeUpdater struct {
	calls int
	err   error
}

func (f *fakeUpdater) Update(ctx context.Context) ([]*model.Vacancy, error) {
	f.calls++
	return nil, f.err
}

func newTestNotifier(repo *fakeNotifierRepo, tg *fakeSender, up *fakeUpdater) *VacancyNotifier {
	n := NewVacancyNotifier(repo, tg, up)
	n.userDelay = 0
	n.passDelay = 0
	n.sendDelay = 0
	return n
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestNotifier_DueCycleDeliversAndAdvancesCheckpoint(t *testing.T) {
	lastCheck := time.Now().UTC().Add(-61 * time.Minute)
	user := &model.User{ChatID: 7, UpdateInterval: 60, LastCheck: lastCheck}
	repo := &fakeNotifierRepo{
		newVacancies: []*model.Vacancy{{
			ID:          1,
			Name:        "Аналитик данных",
			PublishedAt: time.Now().UTC().Add(-10 * time.Minute),
		}},
	}
	tg := &fakeSender{}
	up := &fakeUpdater{}
	n := newTestNotifier(repo, tg, up)

	before := time.Now().UTC()
	if err := n.checkAndNotify(context.Background(), user); err != nil {
		t.Fatalf("check and notify: %v", err)
	}
	after := time.Now().UTC()

	if up.calls != 1 {
		t.Fatalf("sync ran %d times, want 1", up.calls)
	}
	if len(tg.sent) != 1 || tg.sent[0].chatID != 7 || tg.sent[0].parseMode != "HTML" {
		t.Fatalf("sent = %+v, want one HTML message to chat 7", tg.sent)
	}
	if len(repo.newSince) != 1 || !repo.newSince[0].Equal(lastCheck) {
		t.Fatalf("new vacancies queried since %v, want previous last_check %v", repo.newSince, lastCheck)
	}
	cp, ok := repo.checkpoints[7]
	if !ok {
		t.Fatal("checkpoint not advanced")
	}
	// The committed checkpoint is the cycle start time, not commit time.
	if cp.Before(before) || cp.After(after) {
		t.Fatalf("checkpoint = %v, want within [%v, %v]", cp, before, after)
	}
}

func TestNotifier_CheckpointAdvancesWithoutNewVacancies(t *testing.T) {
	user := &model.User{ChatID: 9, UpdateInterval: 60, LastCheck: time.Now().UTC().Add(-2 * time.Hour)}
	repo := &fakeNotifierRepo{}
	tg := &fakeSender{}
	n := newTestNotifier(repo, tg, &fakeUpdater{})

	if err := n.checkAndNotify(context.Background(), user); err != nil {
		t.Fatalf("check and notify: %v", err)
	}
	if len(tg.sent) != 0 {
		t.Fatalf("nothing should be delivered, sent %d", len(tg.sent))
	}
	if _, ok := repo.checkpoints[9]; !ok {
		t.Fatal("checkpoint must advance even when no vacancies were found")
	}
}

func TestNotifier_NotDueUserSkipped(t *testing.T) {
	repo := &fakeNotifierRepo{
		users: []*model.User{{ChatID: 5, UpdateInterval: 60, LastCheck: time.Now().UTC().Add(-30 * time.Minute)}},
	}
	up := &fakeUpdater{}
	n := newTestNotifier(repo, &fakeSender{}, up)
	repo.onGetAllUsers = n.Stop // one pass, then exit

	n.Run(context.Background())

	if up.calls != 0 {
		t.Fatalf("sync must not run for a user whose interval has not elapsed, ran %d times", up.calls)
	}
	if len(repo.checkpoints) != 0 {
		t.Fatalf("checkpoint must stay unchanged, got %v", repo.checkpoints)
	}
}

func TestNotifier_DueUserProcessedInLoop(t *testing.T) {
	repo := &fakeNotifierRepo{
		users: []*model.User{{ChatID: 5, UpdateInterval: 60, LastCheck: time.Now().UTC().Add(-61 * time.Minute)}},
	}
	up := &fakeUpdater{}
	n := newTestNotifier(repo, &fakeSender{}, up)
	repo.onGetAllUsers = n.Stop

	n.Run(context.Background())

	if up.calls != 1 {
		t.Fatalf("sync ran %d times, want 1", up.calls)
	}
	if _, ok := repo.checkpoints[5]; !ok {
		t.Fatal("checkpoint not advanced for due user")
	}
}

func TestNotifier_CheckpointRetriesOnceThroughReconnect(t *testing.T) {
	user := &model.User{ChatID: 3, UpdateInterval: 60, LastCheck: time.Now().UTC().Add(-2 * time.Hour)}
	repo := &fakeNotifierRepo{updateFails: 1}
	n := newTestNotifier(repo, &fakeSender{}, &fakeUpdater{})

	if err := n.checkAndNotify(context.Background(), user); err != nil {
		t.Fatalf("check and notify: %v", err)
	}
	if repo.reconnects != 1 {
		t.Fatalf("reconnects = %d, want exactly 1", repo.reconnects)
	}
	if _, ok := repo.checkpoints[3]; !ok {
		t.Fatal("checkpoint must be updated after the reconnect retry")
	}
}

func TestNotifier_CheckpointLeftStaleAfterSecondFailure(t *testing.T) {
	user := &model.User{ChatID: 3, UpdateInterval: 60, LastCheck: time.Now().UTC().Add(-2 * time.Hour)}
	repo := &fakeNotifierRepo{updateFails: 2}
	n := newTestNotifier(repo, &fakeSender{}, &fakeUpdater{})

	if err := n.checkAndNotify(context.Background(), user); err == nil {
		t.Fatal("expected error when the retry also fails")
	}
	if repo.reconnects != 1 {
		t.Fatalf("reconnects = %d, want exactly 1", repo.reconnects)
	}
	if len(repo.checkpoints) != 0 {
		t.Fatal("checkpoint must stay stale after the failed retry")
	}
}

func TestNotifier_DeliveryFailureDoesNotAbortBatch(t *testing.T) {
	user := &model.User{ChatID: 8, UpdateInterval: 60, LastCheck: time.Now().UTC().Add(-2 * time.Hour)}
	repo := &fakeNotifierRepo{
		newVacancies: []*model.Vacancy{
			{ID: 1, Name: "Первая"},
			{ID: 2, Name: "Вторая"},
		},
	}
	tg := &fakeSender{failFirst: true}
	n := newTestNotifier(repo, tg, &fakeUpdater{})

	if err := n.checkAndNotify(context.Background(), user); err != nil {
		t.Fatalf("check and notify: %v", err)
	}
	if len(tg.sent) != 2 {
		t.Fatalf("sent %d messages, want both attempted", len(tg.sent))
	}
	if _, ok := repo.checkpoints[8]; !ok {
		t.Fatal("checkpoint must advance despite a delivery failure")
	}
}

func TestDue(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name    string
		ago     time.Duration
		minutes int
		want    bool
	}{
		{"elapsed", 61 * time.Minute, 60, true},
		{"exactly at the boundary", 60 * time.Minute, 60, true},
		{"not elapsed", 30 * time.Minute, 60, false},
	}
	for _, tc := range cases {
		u := &model.User{UpdateInterval: tc.minutes, LastCheck: now.Add(-tc.ago)}
		if got := due(u, now); got != tc.want {
			t.Errorf("%s: due = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFormatVacancy_StatedSalary(t *testing.T) {
	v := &model.Vacancy{
		Name:       "Аналитик данных",
		Employer:   strPtr("Рога и копыта"),
		City:       strPtr("Москва"),
		SalaryFrom: intPtr(100000),
		SalaryTo:   intPtr(150000),
		Grade:      "Middle",
		URL:        strPtr("https://hh.ru/vacancy/1"),
	}
	msg := FormatVacancy(v)
	if !strings.Contains(msg, "💵 Зарплата: 100000 – 150000") {
		t.Fatalf("stated salary missing: %q", msg)
	}
	if strings.Contains(msg, "Примерная") {
		t.Fatalf("predicted salary must not appear with a stated one: %q", msg)
	}
}

func TestFormatVacancy_OpenUpperBound(t *testing.T) {
	v := &model.Vacancy{Name: "Аналитик", SalaryFrom: intPtr(100000)}
	if msg := FormatVacancy(v); !strings.Contains(msg, "💵 Зарплата: 100000 – ?") {
		t.Fatalf("open upper bound should render as ?: %q", msg)
	}
}

func TestFormatVacancy_PredictedSalaryAndPlaceholders(t *testing.T) {
	v := &model.Vacancy{Name: "Аналитик", PredictedSalary: intPtr(123500)}
	msg := FormatVacancy(v)
	for _, want := range []string{
		"💸 Примерная зарплата: 123500",
		"Работодатель не указан",
		"Город не указан",
		"Грейд: Не определен",
		"<a href='#'>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %q", want, msg)
		}
	}
}
