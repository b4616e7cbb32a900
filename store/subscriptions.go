package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Subscribe registers a collection for incremental sync. When the collection
// is already registered the existing row is refreshed in place (keeping its
// counters and check history) and the returned bool is false.
func (s *Store) Subscribe(sub *Subscription) (bool, error) {
	var existing Subscription
	err := s.db.Where("platform = ? AND collection_id = ?", sub.Platform, sub.CollectionID).First(&existing).Error
	switch {
	case err == nil:
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		sub.LastCheckAt = existing.LastCheckAt
		sub.LastItemCount = existing.LastItemCount
		sub.TotalDownloaded = existing.TotalDownloaded
		sub.Enabled = true
		if err := s.db.Save(sub).Error; err != nil {
			return false, err
		}
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub.Enabled = true
		if err := s.db.Create(sub).Error; err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

// GetSubscription looks up one subscription by its platform+collection pair.
func (s *Store) GetSubscription(platform, collectionID string) (*Subscription, error) {
	var sub Subscription
	err := s.db.Where("platform = ? AND collection_id = ?", platform, collectionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscriptions returns every subscription in creation order.
func (s *Store) ListSubscriptions() ([]Subscription, error) {
	var subs []Subscription
	if err := s.db.Order("id").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// Unsubscribe removes a subscription together with its track ledger.
func (s *Store) Unsubscribe(platform, collectionID string) error {
	sub, err := s.GetSubscription(platform, collectionID)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscription_id = ?", sub.ID).Delete(&Track{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Subscription{}, sub.ID).Error
	})
}

// DueSubscriptions returns the enabled auto-sync subscriptions whose check
// interval has elapsed at the given instant, in creation order. A
// subscription that has never been checked is always due.
func (s *Store) DueSubscriptions(now time.Time) ([]Subscription, error) {
	var subs []Subscription
	if err := s.db.Where("enabled = ? AND auto_sync = ?", true, true).Order("id").Find(&subs).Error; err != nil {
		return nil, err
	}
	due := subs[:0]
	for _, sub := range subs {
		if sub.LastCheckAt == nil || !now.Before(sub.LastCheckAt.Add(time.Duration(sub.CheckInterval)*time.Second)) {
			due = append(due, sub)
		}
	}
	return due, nil
}

// UpdateAfterPass records the outcome of one sync pass: the check timestamp,
// the upstream item count and the number of items downloaded this pass.
func (s *Store) UpdateAfterPass(subID uint, itemCount, downloadedDelta int, at time.Time) error {
	res := s.db.Model(&Subscription{}).Where("id = ?", subID).Updates(map[string]interface{}{
		"last_check_at":    at,
		"last_item_count":  itemCount,
		"total_downloaded": gorm.Expr("total_downloaded + ?", downloadedDelta),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
