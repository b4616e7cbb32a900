package store

import (
	"errors"

	"gorm.io/gorm"
)

// AddHistory records a completed download, replacing any earlier entry for
// the same content.
func (s *Store) AddHistory(entry *HistoryEntry) error {
	var existing HistoryEntry
	err := s.db.Where("platform = ? AND content_id = ?", entry.Platform, entry.ContentID).First(&existing).Error
	switch {
	case err == nil:
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		return s.db.Save(entry).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(entry).Error
	default:
		return err
	}
}

// FindHistory looks up an earlier download of the given content.
func (s *Store) FindHistory(platform, contentID string) (*HistoryEntry, error) {
	var entry HistoryEntry
	err := s.db.Where("platform = ? AND content_id = ?", platform, contentID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecentHistory returns the latest completed downloads, newest first.
func (s *Store) RecentHistory(limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := s.db.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
