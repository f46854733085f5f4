package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ilinovom/hh-vacancy-bot/internal/hh"
	"github.com/ilinovom/hh-vacancy-bot/internal/model"
	"github.com/ilinovom/hh-vacancy-bot/pkg/mlservice"
)

type fakeSyncRepo struct {
	existing      map[int64]struct{}
	lastPublished time.Time
	inserted      []*model.Vacancy
}

var _ SyncStorage = (*fakeSyncRepo)(nil)

func (f *fakeSyncRepo) GetLastPublishedTime(ctx context.Context) (time.Time, error) {
	if f.lastPublished.IsZero() {
		return time.Now().UTC(), nil
	}
	return f.lastPublished, nil
}

func (f *fakeSyncRepo) GetExistingIDs(ctx context.Context) (map[int64]struct{}, error) {
	if f.existing == nil {
		return map[int64]struct{}{}, nil
	}
	return f.existing, nil
}

func (f *fakeSyncRepo) InsertVacancy(ctx context.Context, v *model.Vacancy) error {
	f.inserted = append(f.inserted, v)
	return nil
}

type fakeAPI struct {
	ids         []string
	vacancies   map[string]*hh.Vacancy
	failIDs     map[string]bool
	listedFrom  time.Time
	detailCalls []string
}

var _ VacancyAPI = (*fakeAPI)(nil)

func (f *fakeAPI) ListIDs(ctx context.Context, from time.Time) ([]string, error) {
	f.listedFrom = from
	return f.ids, nil
}

func (f *fakeAPI) GetVacancy(ctx context.Context, id string) (*hh.Vacancy, error) {
	f.detailCalls = append(f.detailCalls, id)
	if f.failIDs[id] {
		return nil, errors.New("boom")
	}
	return f.vacancies[id], nil
}

type fakePredictor struct {
	grade       string
	salary      float64
	salaryCalls int
}

var _ Predictor = (*fakePredictor)(nil)

func (f *fakePredictor) PredictGrade(ctx context.Context, feats mlservice.Features) (string, error) {
	return f.grade, nil
}

func (f *fakePredictor) PredictSalary(ctx context.Context, feats mlservice.Features) (float64, error) {
	f.salaryCalls++
	return f.salary, nil
}

func rawVacancy(id string, salary *hh.Salary) *hh.Vacancy {
	return &hh.Vacancy{
		ID:          id,
		Name:        "Аналитик данных",
		Salary:      salary,
		PublishedAt: "2024-03-01T12:00:00+0300",
	}
}

func TestVacancyService_UpdateEmptyStore(t *testing.T) {
	repo := &fakeSyncRepo{}
	api := &fakeAPI{
		ids: []string{"1", "2", "3"},
		vacancies: map[string]*hh.Vacancy{
			"1": rawVacancy("1", nil),
			"2": rawVacancy("2", nil),
			"3": rawVacancy("3", nil),
		},
	}
	svc := NewVacancyService(repo, api, &fakePredictor{grade: "Junior", salary: 95000}, nil)

	before := time.Now().UTC()
	added, err := svc.Update(context.Background())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(added) != 3 || len(repo.inserted) != 3 {
		t.Fatalf("expected 3 new vacancies, got %d added, %d inserted", len(added), len(repo.inserted))
	}
	// Empty store: the watermark is the call-time instant, no historical backfill.
	if api.listedFrom.Before(before) || api.listedFrom.After(time.Now().UTC()) {
		t.Fatalf("watermark for empty store = %v, want about now", api.listedFrom)
	}
}

func TestVacancyService_DedupBeforeDetailFetch(t *testing.T) {
	repo := &fakeSyncRepo{existing: map[int64]struct{}{2: {}}}
	api := &fakeAPI{
		ids: []string{"1", "2", "3"},
		vacancies: map[string]*hh.Vacancy{
			"1": rawVacancy("1", nil),
			"3": rawVacancy("3", nil),
		},
	}
	svc := NewVacancyService(repo, api, &fakePredictor{grade: "Middle", salary: 100}, nil)

	if _, err := svc.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(api.detailCalls) != 2 || api.detailCalls[0] != "1" || api.detailCalls[1] != "3" {
		t.Fatalf("detail fetched for %v, want exactly the unknown ids [1 3]", api.detailCalls)
	}
}

func TestVacancyService_PredictedSalaryOnlyWithoutStatedOne(t *testing.T) {
	from := 120000
	repo := &fakeSyncRepo{}
	api := &fakeAPI{
		ids: []string{"1", "2"},
		vacancies: map[string]*hh.Vacancy{
			"1": rawVacancy("1", &hh.Salary{From: &from}),
			"2": rawVacancy("2", &hh.Salary{}), // salary object present, both bounds null
		},
	}
	pred := &fakePredictor{grade: "Junior", salary: 123456.78}
	svc := NewVacancyService(repo, api, pred, nil)

	added, err := svc.Update(context.Background())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected 2 vacancies, got %d", len(added))
	}
	stated, estimated := added[0], added[1]
	if stated.PredictedSalary != nil {
		t.Fatalf("stated salary must not get a prediction")
	}
	if estimated.PredictedSalary == nil {
		t.Fatal("missing salary_from must get a prediction")
	}
	if *estimated.PredictedSalary != 123500 {
		t.Fatalf("predicted salary = %d, want 123500 (rounded to nearest hundred)", *estimated.PredictedSalary)
	}
	if pred.salaryCalls != 1 {
		t.Fatalf("salary model called %d times, want 1", pred.salaryCalls)
	}
	if estimated.Grade != "Junior" {
		t.Fatalf("grade = %q", estimated.Grade)
	}
}

func TestVacancyService_SkipsFailedVacancies(t *testing.T) {
	repo := &fakeSyncRepo{}
	api := &fakeAPI{
		ids:     []string{"1", "2", "3"},
		failIDs: map[string]bool{"2": true},
		vacancies: map[string]*hh.Vacancy{
			"1": rawVacancy("1", nil),
			"3": rawVacancy("3", nil),
		},
	}
	svc := NewVacancyService(repo, api, &fakePredictor{grade: "Senior", salary: 100}, nil)

	added, err := svc.Update(context.Background())
	if err != nil {
		t.Fatalf("one bad vacancy must not fail the sync: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected 2 vacancies despite one failure, got %d", len(added))
	}
}

func TestVacancyService_SkipsMalformedIDs(t *testing.T) {
	repo := &fakeSyncRepo{}
	api := &fakeAPI{
		ids:       []string{"abc", "1"},
		vacancies: map[string]*hh.Vacancy{"1": rawVacancy("1", nil)},
	}
	svc := NewVacancyService(repo, api, &fakePredictor{grade: "Junior", salary: 100}, nil)

	added, err := svc.Update(context.Background())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(added) != 1 || added[0].ID != 1 {
		t.Fatalf("expected only the well-formed id stored, got %v", added)
	}
}
