package data

import (
	"context"
	"fmt"
	"time"

	"DocketWatch/internal/model"
	"DocketWatch/pkg/registry"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// MonitoredCase is the GORM model for the monitored_cases table.
type MonitoredCase struct {
	ID            int64      `gorm:"primaryKey;column:id"`
	ExternalKey   string     `gorm:"column:external_key;type:varchar(64);not null;uniqueIndex"`
	TrackingID    string     `gorm:"column:tracking_id;type:varchar(64);not null"`
	Active        bool       `gorm:"column:active;not null;default:true;index"`
	LastCheckedAt *time.Time `gorm:"column:last_checked_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (MonitoredCase) TableName() string {
	return "monitored_cases"
}

// CaseUpdate is the GORM model for the case_updates table.
type CaseUpdate struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	CaseID    int64     `gorm:"column:case_id;not null;index"`
	Date      time.Time `gorm:"column:date;not null"`
	Type      string    `gorm:"column:type;type:varchar(64)"`
	Content   string    `gorm:"column:content;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (CaseUpdate) TableName() string {
	return "case_updates"
}

// CaseAttachment is the GORM model for the case_attachments table.
type CaseAttachment struct {
	ID           int64     `gorm:"primaryKey;column:id"`
	CaseID       int64     `gorm:"column:case_id;not null;index"`
	AttachmentID string    `gorm:"column:attachment_id;type:varchar(64);not null;uniqueIndex"`
	Name         string    `gorm:"column:name;type:varchar(255)"`
	SizeBytes    int64     `gorm:"column:size_bytes;not null"`
	Instance     int       `gorm:"column:instance;not null;default:0"`
	Content      []byte    `gorm:"column:content;type:longblob"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (CaseAttachment) TableName() string {
	return "case_attachments"
}

// CaseRepo implements biz.CaseRepo on MySQL.
type CaseRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewCaseRepo creates a new case repository.
func NewCaseRepo(db *gorm.DB, logger log.Logger) *CaseRepo {
	return &CaseRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Insert stores a newly enrolled case and fills its ID.
func (r *CaseRepo) Insert(ctx context.Context, mc *model.MonitoredCase) error {
	row := MonitoredCase{
		ExternalKey:   mc.ExternalKey,
		TrackingID:    mc.TrackingID,
		Active:        mc.Active,
		LastCheckedAt: mc.LastCheckedAt,
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert case %s: %w", mc.ExternalKey, err)
	}

	mc.ID = row.ID
	r.logger.Infow("monitored case created",
		"case_id", row.ID,
		"external_key", mc.ExternalKey)
	return nil
}

// ListActive returns the full population of cases under monitoring.
func (r *CaseRepo) ListActive(ctx context.Context) ([]*model.MonitoredCase, error) {
	var rows []MonitoredCase
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active cases: %w", err)
	}

	cases := make([]*model.MonitoredCase, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, &model.MonitoredCase{
			ID:            row.ID,
			ExternalKey:   row.ExternalKey,
			TrackingID:    row.TrackingID,
			Active:        row.Active,
			LastCheckedAt: row.LastCheckedAt,
		})
	}
	return cases, nil
}

// PersistUpdates stores newly fetched movements for a case.
func (r *CaseRepo) PersistUpdates(ctx context.Context, caseID int64, items []registry.UpdateItem) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([]CaseUpdate, 0, len(items))
	for _, item := range items {
		rows = append(rows, CaseUpdate{
			CaseID:  caseID,
			Date:    item.Date,
			Type:    item.Type,
			Content: item.Content,
		})
	}

	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to persist %d updates for case %d: %w", len(items), caseID, err)
	}

	r.logger.Debugw("case updates persisted",
		"case_id", caseID,
		"count", len(items))
	return nil
}

// PersistAttachment stores one downloaded attachment.
func (r *CaseRepo) PersistAttachment(ctx context.Context, caseID int64, ref registry.AttachmentRef, data []byte) error {
	row := CaseAttachment{
		CaseID:       caseID,
		AttachmentID: ref.ID,
		Name:         ref.Name,
		SizeBytes:    int64(len(data)),
		Instance:     ref.Instance,
		Content:      data,
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to persist attachment %s for case %d: %w", ref.ID, caseID, err)
	}

	r.logger.Debugw("attachment persisted",
		"case_id", caseID,
		"attachment_id", ref.ID,
		"size_bytes", len(data))
	return nil
}

// TouchChecked records when a case was last successfully checked.
func (r *CaseRepo) TouchChecked(ctx context.Context, caseID int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&MonitoredCase{}).
		Where("id = ?", caseID).
		Update("last_checked_at", at)

	if result.Error != nil {
		return fmt.Errorf("failed to update check time for case %d: %w", caseID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("case not found: %d", caseID)
	}
	return nil
}
