package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ilinovom/hh-vacancy-bot/internal/hh"
	"github.com/ilinovom/hh-vacancy-bot/internal/model"
	"github.com/ilinovom/hh-vacancy-bot/pkg/mlservice"
)

// seenIDsKey is the redis set caching vacancy IDs that were already stored.
const seenIDsKey = "hh:vacancy_ids"

// SyncStorage is the part of the storage layer the sync engine needs.
type SyncStorage interface {
	GetLastPublishedTime(ctx context.Context) (time.Time, error)
	GetExistingIDs(ctx context.Context) (map[int64]struct{}, error)
	InsertVacancy(ctx context.Context, v *model.Vacancy) error
}

// VacancyAPI describes the part of the hh.ru client used by the service.
type VacancyAPI interface {
	ListIDs(ctx context.Context, from time.Time) ([]string, error)
	GetVacancy(ctx context.Context, id string) (*hh.Vacancy, error)
}

// Predictor is the external ML collaborator labelling vacancies.
type Predictor interface {
	PredictGrade(ctx context.Context, f mlservice.Features) (string, error)
	PredictSalary(ctx context.Context, f mlservice.Features) (float64, error)
}

// VacancyService brings the store up to date with hh.ru. The set difference
// against existing IDs (and the optional redis seen-cache) happens before the
// expensive per-ID detail fetches; under concurrent syncs it can race, so the
// storage-level insert-if-absent remains the actual duplicate guard.
type VacancyService struct {
	repo      SyncStorage
	api       VacancyAPI
	predictor Predictor
	seen      *redis.Client // optional; nil disables the cache
}

func NewVacancyService(repo SyncStorage, api VacancyAPI, predictor Predictor, seen *redis.Client) *VacancyService {
	return &VacancyService{repo: repo, api: api, predictor: predictor, seen: seen}
}

// Update fetches vacancies published since the store's watermark, skips the
// ones already known, and stores the rest. A failure on a single vacancy is
// logged and skipped. Returns the newly stored vacancies.
func (s *VacancyService) Update(ctx context.Context) ([]*model.Vacancy, error) {
	lastPublished, err := s.repo.GetLastPublishedTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("last published time: %w", err)
	}
	log.Printf("[fetch] requesting vacancies since %s", lastPublished.Format(time.RFC3339))

	ids, err := s.api.ListIDs(ctx, lastPublished)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	existing, err := s.repo.GetExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("existing ids: %w", err)
	}

	var added []*model.Vacancy
	for _, id := range ids {
		vid, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			log.Printf("[fetch] bad vacancy id %q: %v", id, err)
			continue
		}
		if _, ok := existing[vid]; ok {
			continue
		}
		if s.cachedSeen(ctx, id) {
			continue
		}
		v, err := s.processVacancy(ctx, id)
		if err != nil {
			log.Printf("[fetch] vacancy %s: %v", id, err)
			continue
		}
		if err := s.repo.InsertVacancy(ctx, v); err != nil {
			log.Printf("[fetch] insert vacancy %s: %v", id, err)
			continue
		}
		s.markSeen(ctx, id)
		added = append(added, v)
	}
	return added, nil
}

// processVacancy fetches one vacancy, normalizes it and fills the
// ML-derived fields.
func (s *VacancyService) processVacancy(ctx context.Context, id string) (*model.Vacancy, error) {
	raw, err := s.api.GetVacancy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}
	v, err := hh.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	f := featuresOf(v)
	grade, err := s.predictor.PredictGrade(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("predict grade: %w", err)
	}
	v.Grade = grade

	// The salary model is a fallback estimate only: it never overrides a
	// stated lower bound.
	if v.SalaryFrom == nil {
		f.Grade = grade
		salary, err := s.predictor.PredictSalary(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("predict salary: %w", err)
		}
		rounded := int(math.Round(salary/100) * 100)
		v.PredictedSalary = &rounded
	}
	return v, nil
}

func featuresOf(v *model.Vacancy) mlservice.Features {
	schedule := hh.NotSpecified
	if v.Schedule != nil {
		schedule = *v.Schedule
	}
	return mlservice.Features{
		VacancyName: v.Name,
		Schedule:    schedule,
		Experience:  v.Experience,
		SalaryTo:    v.SalaryTo,
		KeySkills:   v.KeySkills,
		Description: v.Description,
	}
}

// cachedSeen consults the optional redis cache. Cache errors only disable
// the optimization, never the sync.
func (s *VacancyService) cachedSeen(ctx context.Context, id string) bool {
	if s.seen == nil {
		return false
	}
	ok, err := s.seen.SIsMember(ctx, seenIDsKey, id).Result()
	if err != nil {
		log.Printf("[fetch] seen cache lookup: %v", err)
		return false
	}
	return ok
}

func (s *VacancyService) markSeen(ctx context.Context, id string) {
	if s.seen == nil {
		return
	}
	if err := s.seen.SAdd(ctx, seenIDsKey, id).Err(); err != nil {
		log.Printf("[fetch] seen cache add: %v", err)
	}
}
