package infrastructure

import (
	"errors"
	"fmt"

	"github.com/yourusername/aurora-dl/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// filterColumns lists the columns FindAll accepts as filters
var filterColumns = map[string]bool{
	"status":         true,
	"install_status": true,
	"package_name":   true,
}

// SQLiteRecordRepository implements RecordRepository using SQLite
type SQLiteRecordRepository struct {
	db *gorm.DB
}

// NewSQLiteRecordRepository creates a new SQLite repository
func NewSQLiteRecordRepository(dbPath string) (*SQLiteRecordRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRecordRepository{db: db}, nil
}

// Save creates or updates a record
func (r *SQLiteRecordRepository) Save(record *domain.DownloadRecord) error {
	return r.db.Save(record).Error
}

// Delete deletes a record by package name
func (r *SQLiteRecordRepository) Delete(packageName string) error {
	return r.db.Delete(&domain.DownloadRecord{}, "package_name = ?", packageName).Error
}

// FindByPackage finds a record by package name
// Returns nil if not found
func (r *SQLiteRecordRepository) FindByPackage(packageName string) (*domain.DownloadRecord, error) {
	var record domain.DownloadRecord
	err := r.db.Where("package_name = ?", packageName).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindQueued finds queued records ordered by queue sequence
func (r *SQLiteRecordRepository) FindQueued() ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	err := r.db.Where("status = ?", domain.StatusQueued).
		Order("queue_seq ASC, created_at ASC").
		Find(&records).Error
	return records, err
}

// FindAll finds all records with optional filters
func (r *SQLiteRecordRepository) FindAll(filters map[string]interface{}) ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	query := r.db

	for key, value := range filters {
		if !filterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}

// ResetInterrupted moves downloading records back to the queue.
// A previous process died while these held the download slot.
func (r *SQLiteRecordRepository) ResetInterrupted() (int64, error) {
	result := r.db.Model(&domain.DownloadRecord{}).
		Where("status = ?", domain.StatusDownloading).
		Updates(map[string]interface{}{
			"status":     domain.StatusQueued,
			"speed_bps":  0,
			"eta_millis": 0,
		})
	return result.RowsAffected, result.Error
}

// MaxQueueSeq returns the highest queue sequence number
func (r *SQLiteRecordRepository) MaxQueueSeq() (int64, error) {
	var seq int64
	err := r.db.Model(&domain.DownloadRecord{}).
		Select("COALESCE(MAX(queue_seq), 0)").
		Scan(&seq).Error
	return seq, err
}

// GetStats returns record statistics
func (r *SQLiteRecordRepository) GetStats() (*domain.DownloadStats, error) {
	stats := &domain.DownloadStats{}

	if err := r.db.Model(&domain.DownloadRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.DownloadStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.DownloadRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusQueued:
			stats.Queued = sc.Count
		case domain.StatusDownloading:
			stats.Downloading = sc.Count
		case domain.StatusPaused:
			stats.Paused = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteRecordRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
