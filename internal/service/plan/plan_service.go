// internal/service/plan/plan_service.go
package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"soko-service/internal/domain/plan"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	activePlanCacheKey = "soko:plans:active"
	planCacheTTL       = 5 * time.Minute
)

// PlanRepository is the storage surface the catalog needs.
type PlanRepository interface {
	Create(ctx context.Context, p *plan.Plan) error
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
	FindByCode(ctx context.Context, code string) (*plan.Plan, error)
	ListActive(ctx context.Context) ([]plan.Plan, error)
	Update(ctx context.Context, p *plan.Plan) error
	SetStatus(ctx context.Context, id int64, status plan.PlanStatus) error
	CountLiveSubscriptions(ctx context.Context, planID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

type PlanService struct {
	repo   PlanRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewPlanService(repo PlanRepository, rdb *redis.Client, logger *zap.Logger) *PlanService {
	return &PlanService{
		repo:   repo,
		rdb:    rdb,
		logger: logger,
	}
}

// GetPlan retrieves a plan by ID
func (s *PlanService) GetPlan(ctx context.Context, id int64) (*plan.Plan, error) {
	return s.repo.FindByID(ctx, id)
}

// GetPlanByCode retrieves a plan by its code
func (s *PlanService) GetPlanByCode(ctx context.Context, code string) (*plan.Plan, error) {
	return s.repo.FindByCode(ctx, code)
}

// ListActivePlans retrieves the purchasable catalog, read-through cached in
// Redis since plans change rarely and this sits on the purchase page path.
func (s *PlanService) ListActivePlans(ctx context.Context) ([]plan.Plan, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, activePlanCacheKey).Bytes()
		if err == nil {
			var plans []plan.Plan
			if err := json.Unmarshal(cached, &plans); err == nil {
				return plans, nil
			}
		}
	}

	plans, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if encoded, err := json.Marshal(plans); err == nil {
			if err := s.rdb.Set(ctx, activePlanCacheKey, encoded, planCacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache active plans", zap.Error(err))
			}
		}
	}

	return plans, nil
}

// CreatePlan validates and creates a new plan
func (s *PlanService) CreatePlan(ctx context.Context, req *plan.CreatePlanRequest) (*plan.Plan, error) {
	if err := validatePlanInput(req.PriceMinor, req.DurationMonths, req.MaxPackages, req.MaxServices); err != nil {
		return nil, err
	}

	p := &plan.Plan{
		PlanCode:           req.PlanCode,
		Name:               req.Name,
		Tier:               req.Tier,
		PriceMinor:         req.PriceMinor,
		Currency:           req.Currency,
		DurationMonths:     req.DurationMonths,
		UnlimitedUploads:   req.UnlimitedUploads,
		CrossCategoryLeads: req.CrossCategoryLeads,
		PriorityListing:    req.PriorityListing,
		AnalyticsAccess:    req.AnalyticsAccess,
		AllowedCategories:  pq.StringArray(req.AllowedCategories),
		Status:             plan.StatusActive,
		IsPublic:           req.IsPublic,
	}
	if req.Summary != "" {
		p.Summary = sql.NullString{String: req.Summary, Valid: true}
	}
	if req.MaxPackages != nil {
		p.MaxPackages = sql.NullInt32{Int32: *req.MaxPackages, Valid: true}
	}
	if req.MaxServices != nil {
		p.MaxServices = sql.NullInt32{Int32: *req.MaxServices, Valid: true}
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.invalidateCache(ctx)
	s.logger.Info("plan created",
		zap.Int64("plan_id", p.ID),
		zap.String("plan_code", p.PlanCode),
		zap.String("tier", string(p.Tier)),
	)

	return p, nil
}

// UpdatePlan applies partial edits. Changes only affect future purchases;
// live subscriptions keep the limits they were sold with.
func (s *PlanService) UpdatePlan(ctx context.Context, id int64, req *plan.UpdatePlanRequest) (*plan.Plan, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Summary != nil {
		p.Summary = sql.NullString{String: *req.Summary, Valid: *req.Summary != ""}
	}
	if req.PriceMinor != nil {
		p.PriceMinor = *req.PriceMinor
	}
	if req.DurationMonths != nil {
		p.DurationMonths = *req.DurationMonths
	}
	if req.UnlimitedUploads != nil {
		p.UnlimitedUploads = *req.UnlimitedUploads
	}
	if req.CrossCategoryLeads != nil {
		p.CrossCategoryLeads = *req.CrossCategoryLeads
	}
	if req.PriorityListing != nil {
		p.PriorityListing = *req.PriorityListing
	}
	if req.AnalyticsAccess != nil {
		p.AnalyticsAccess = *req.AnalyticsAccess
	}
	if req.MaxPackages != nil {
		p.MaxPackages = sql.NullInt32{Int32: *req.MaxPackages, Valid: true}
	}
	if req.MaxServices != nil {
		p.MaxServices = sql.NullInt32{Int32: *req.MaxServices, Valid: true}
	}
	if req.AllowedCategories != nil {
		p.AllowedCategories = pq.StringArray(req.AllowedCategories)
	}
	if req.IsPublic != nil {
		p.IsPublic = *req.IsPublic
	}

	var maxPackages, maxServices *int32
	if p.MaxPackages.Valid {
		maxPackages = &p.MaxPackages.Int32
	}
	if p.MaxServices.Valid {
		maxServices = &p.MaxServices.Int32
	}
	if err := validatePlanInput(p.PriceMinor, p.DurationMonths, maxPackages, maxServices); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.invalidateCache(ctx)
	s.logger.Info("plan updated", zap.Int64("plan_id", p.ID))

	return p, nil
}

// SetPlanStatus activates or deactivates a plan
func (s *PlanService) SetPlanStatus(ctx context.Context, id int64, status plan.PlanStatus) error {
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// DeletePlan removes a plan unless a live subscription still references it
func (s *PlanService) DeletePlan(ctx context.Context, id int64) error {
	live, err := s.repo.CountLiveSubscriptions(ctx, id)
	if err != nil {
		return err
	}
	if live > 0 {
		return xerrors.ErrPlanInUse
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateCache(ctx)
	s.logger.Info("plan deleted", zap.Int64("plan_id", id))
	return nil
}

func (s *PlanService) invalidateCache(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, activePlanCacheKey).Err(); err != nil {
		s.logger.Warn("failed to invalidate plan cache", zap.Error(err))
	}
}

func validatePlanInput(priceMinor int64, durationMonths int, maxPackages, maxServices *int32) error {
	if priceMinor < 0 {
		return fmt.Errorf("%w: price must not be negative", xerrors.ErrInvalidInput)
	}
	if !plan.IsValidDuration(durationMonths) {
		return fmt.Errorf("%w: duration must be one of %v months", xerrors.ErrInvalidInput, plan.ValidDurations)
	}
	if maxPackages != nil && *maxPackages <= 0 {
		return fmt.Errorf("%w: max packages must be positive", xerrors.ErrInvalidInput)
	}
	if maxServices != nil && *maxServices <= 0 {
		return fmt.Errorf("%w: max services must be positive", xerrors.ErrInvalidInput)
	}
	return nil
}
