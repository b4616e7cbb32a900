package store

import (
	"time"

	"gorm.io/gorm"
)

// TrackStats summarizes the ledger of one subscription.
type TrackStats struct {
	Total      int64
	Downloaded int64
	Failed     int64
	Pending    int64
}

// ObserveTrack records the first sighting of a collection member as pending.
// Returns true when the row was created, false when it already existed.
func (s *Store) ObserveTrack(subID uint, itemID, title, artist, album string) (bool, error) {
	track := Track{
		SubscriptionID: subID,
		ItemID:         itemID,
		Title:          title,
		Artist:         artist,
		Album:          album,
	}
	res := s.db.Where("subscription_id = ? AND item_id = ?", subID, itemID).FirstOrCreate(&track)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TracksBySubscription returns every track of a subscription in observation
// order.
func (s *Store) TracksBySubscription(subID uint) ([]Track, error) {
	var tracks []Track
	if err := s.db.Where("subscription_id = ?", subID).Order("id").Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

// FailedTracks returns the tracks of a subscription currently in the failed
// state.
func (s *Store) FailedTracks(subID uint) ([]Track, error) {
	var tracks []Track
	err := s.db.Where("subscription_id = ? AND downloaded = ? AND fail_reason <> ''", subID, false).
		Order("id").Find(&tracks).Error
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// MarkDownloaded flips a track to the downloaded state and clears any earlier
// failure.
func (s *Store) MarkDownloaded(subID uint, itemID string, at time.Time) error {
	res := s.db.Model(&Track{}).
		Where("subscription_id = ? AND item_id = ?", subID, itemID).
		Updates(map[string]interface{}{
			"downloaded":    true,
			"downloaded_at": at,
			"fail_reason":   "",
			"fail_at":       nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a failed attempt and bumps the retry counter.
func (s *Store) MarkFailed(subID uint, itemID, reason string, at time.Time) error {
	res := s.db.Model(&Track{}).
		Where("subscription_id = ? AND item_id = ?", subID, itemID).
		Updates(map[string]interface{}{
			"fail_reason": reason,
			"fail_at":     at,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetFailed returns every failed track of a subscription to pending so the
// next pass attempts them again. retry_count keeps its value. Returns the
// number of tracks reset.
func (s *Store) ResetFailed(subID uint) (int64, error) {
	res := s.db.Model(&Track{}).
		Where("subscription_id = ? AND downloaded = ? AND fail_reason <> ''", subID, false).
		Updates(map[string]interface{}{
			"fail_reason": "",
			"fail_at":     nil,
		})
	return res.RowsAffected, res.Error
}

// CountTracks reports per-state totals for one subscription.
func (s *Store) CountTracks(subID uint) (*TrackStats, error) {
	var stats TrackStats
	if err := s.db.Model(&Track{}).Where("subscription_id = ?", subID).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Track{}).Where("subscription_id = ? AND downloaded = ?", subID, true).Count(&stats.Downloaded).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Track{}).Where("subscription_id = ? AND downloaded = ? AND fail_reason <> ''", subID, false).Count(&stats.Failed).Error; err != nil {
		return nil, err
	}
	stats.Pending = stats.Total - stats.Downloaded - stats.Failed
	return &stats, nil
}
