package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/keymasterhq/keymaster/internal/models"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logctx"
	"github.com/keymasterhq/keymaster/pkg/tool"
	types "github.com/keymasterhq/keymaster/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	cfg *cfgpkg.Config
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(cfg *cfgpkg.Config, db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, log: log}
}

type CreateLicenseRequest struct {
	UserID         string         `json:"user_id"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	MaxActivations int            `json:"max_activations"`
	Metadata       map[string]any `json:"metadata"`
	Notes          string         `json:"notes"`
}

// Create issues a new license with a freshly generated key. A duplicate-key
// insert (astronomically unlikely) surfaces as the store's uniqueness error.
func (s *Service) Create(ctx context.Context, req *CreateLicenseRequest) (*models.License, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	maxActivations := req.MaxActivations
	if maxActivations <= 0 {
		maxActivations = s.cfg.License.MaxActivations
	}

	lic := &models.License{
		ID:             tool.GenerateUUIDV7(),
		UserID:         req.UserID,
		LicenseKey:     key,
		Status:         models.LicenseStatusActive,
		IssuedAt:       time.Now(),
		ExpiresAt:      req.ExpiresAt,
		MaxActivations: maxActivations,
		Metadata:       datatypes.JSONMap(req.Metadata),
		Notes:          req.Notes,
	}
	if lic.Metadata == nil {
		lic.Metadata = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(lic).Error; err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}
	return lic, nil
}

// CreateInTx issues a license inside an existing transaction. Used by the
// purchase processor and the migration flow.
func (s *Service) CreateInTx(ctx context.Context, tx *gorm.DB, userID string, expiresAt *time.Time, metadata map[string]any) (*models.License, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	lic := &models.License{
		ID:             tool.GenerateUUIDV7(),
		UserID:         userID,
		LicenseKey:     key,
		Status:         models.LicenseStatusActive,
		IssuedAt:       time.Now(),
		ExpiresAt:      expiresAt,
		MaxActivations: s.cfg.License.MaxActivations,
		Metadata:       datatypes.JSONMap(metadata),
	}
	if lic.Metadata == nil {
		lic.Metadata = datatypes.JSONMap{}
	}
	if err := tx.WithContext(ctx).Create(lic).Error; err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}
	return lic, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.License, error) {
	var lic models.License
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return &lic, nil
}

func (s *Service) GetByKey(ctx context.Context, key string) (*models.License, error) {
	var lic models.License
	if err := s.db.WithContext(ctx).Where("license_key = ?", key).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return &lic, nil
}

type UpdateLicenseRequest struct {
	Status         *models.LicenseStatus `json:"status"`
	ExpiresAt      *time.Time            `json:"expires_at"`
	MaxActivations *int                  `json:"max_activations"`
	Metadata       map[string]any        `json:"metadata"`
	Notes          *string               `json:"notes"`
}

// Update mutates administrative fields. The license key itself is immutable.
func (s *Service) Update(ctx context.Context, id string, req *UpdateLicenseRequest) (*models.License, error) {
	lic, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		lic.Status = *req.Status
	}
	if req.ExpiresAt != nil {
		lic.ExpiresAt = req.ExpiresAt
	}
	if req.MaxActivations != nil && *req.MaxActivations >= 1 {
		lic.MaxActivations = *req.MaxActivations
	}
	if req.Metadata != nil {
		lic.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if req.Notes != nil {
		lic.Notes = *req.Notes
	}
	if err := s.db.WithContext(ctx).Save(lic).Error; err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}
	return lic, nil
}

// Revoke sets status=revoked and stamps revoked_at. Idempotent.
func (s *Service) Revoke(ctx context.Context, id string, reason string) (*models.License, error) {
	lic, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic.Status == models.LicenseStatusRevoked {
		return lic, nil
	}
	now := time.Now()
	lic.Status = models.LicenseStatusRevoked
	lic.RevokedAt = &now
	if reason != "" {
		lic.Notes = appendNote(lic.Notes, reason)
	}
	if err := s.db.WithContext(ctx).Save(lic).Error; err != nil {
		return nil, fmt.Errorf("failed to revoke license: %w", err)
	}
	return lic, nil
}

// Delete removes the license and its activation records.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.License{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete license: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrLicenseNotFound
		}
		if err := tx.Where("license_id = ?", id).Delete(&models.LicenseActivation{}).Error; err != nil {
			return fmt.Errorf("failed to delete activations: %w", err)
		}
		return nil
	})
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

type ScanLicensesRequest struct {
	UserID    string                `json:"user_id"`
	Status    string                `json:"status"`
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanLicensesResponse struct {
	Items []*models.License `json:"items"`
	Total int64             `json:"total"`
}

// Scan implements paginated/admin listing with filters.
func (s *Service) Scan(ctx context.Context, req *ScanLicensesRequest) (*ScanLicensesResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.License{})
	if req.UserID != "" {
		tx = tx.Where("user_id = ?", req.UserID)
	}
	if req.Status != "" {
		tx = tx.Where("status = ?", req.Status)
	}
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count licenses: %w", err)
	}

	var rows []*models.License
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	return &ScanLicensesResponse{Items: rows, Total: total}, nil
}

// audit appends a LicenseValidation row. Failures never propagate; audit
// logging must not fail the primary operation.
func (s *Service) audit(ctx context.Context, licenseID *string, key string, valid bool, message string, dev DeviceInfo) {
	row := &models.LicenseValidation{
		ID:                tool.GenerateUUIDV7(),
		LicenseID:         licenseID,
		LicenseKey:        key,
		Valid:             valid,
		Message:           message,
		IPAddress:         dev.IPAddress,
		UserAgent:         dev.UserAgent,
		DeviceFingerprint: dev.Fingerprint,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save validation audit: %v", err)
	}
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
