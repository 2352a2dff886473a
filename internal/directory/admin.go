package directory

import (
	"fmt"
	"time"

	"nexus/internal/models"
)

var banDurations = map[string]time.Duration{
	"1h":        time.Hour,
	"24h":       24 * time.Hour,
	"7d":        7 * 24 * time.Hour,
	"permanent": 0,
}

func banExpired(b *models.BanDetails, now time.Time) bool {
	if b == nil {
		return true
	}
	d, ok := banDurations[b.Duration]
	if !ok || d == 0 {
		return false
	}
	return !now.Before(time.UnixMilli(b.BannedAt).Add(d))
}

// actor resolves the current user's role from the directory row, which
// moderation keeps fresher than the signed in copy.
func (s *Service) actor(min models.Role) (models.Account, error) {
	me, err := s.store.RequireCurrentUser()
	if err != nil {
		return models.Account{}, err
	}
	if row, ok := s.store.Lookup(me.ID); ok {
		me.Role = row.Role
	}
	if !me.Role.AtLeast(min) {
		return models.Account{}, fmt.Errorf("%w: requires %s", ErrForbidden, min)
	}
	return me, nil
}

func (s *Service) updateRow(id string, fn func(*models.Account) error) error {
	return s.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
		for i := range dir {
			if dir[i].ID == id {
				if err := fn(&dir[i]); err != nil {
					return nil, err
				}
				return dir, nil
			}
		}
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	})
}

func (s *Service) setBan(id string, details *models.BanDetails) error {
	return s.updateRow(id, func(a *models.Account) error {
		if details == nil {
			a.Status = statusOnline
		} else {
			a.Status = models.StatusBanned
		}
		a.BanDetails = details
		return nil
	})
}

// Ban suspends targetID. Requires admin; owners can only be banned by owners.
func (s *Service) Ban(targetID, reason, duration string) error {
	me, err := s.actor(models.RoleAdmin)
	if err != nil {
		return err
	}
	if _, ok := banDurations[duration]; !ok {
		return ErrInvalidBan
	}
	if targetID == me.ID {
		return fmt.Errorf("%w: cannot ban yourself", ErrForbidden)
	}
	target, ok := s.store.Lookup(targetID)
	if !ok {
		return fmt.Errorf("account %s: %w", targetID, models.ErrNotFound)
	}
	if target.Role == models.RoleOwner && me.Role != models.RoleOwner {
		return fmt.Errorf("%w: cannot ban an owner", ErrForbidden)
	}

	err = s.setBan(targetID, &models.BanDetails{
		Reason:   reason,
		Duration: duration,
		BannedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	s.log.Info("account banned", "user_id", targetID, "by", me.ID, "duration", duration)
	return nil
}

func (s *Service) Unban(targetID string) error {
	me, err := s.actor(models.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.setBan(targetID, nil); err != nil {
		return err
	}
	s.log.Info("ban lifted", "user_id", targetID, "by", me.ID)
	return nil
}

// SetRole changes targetID's role. Owner only.
func (s *Service) SetRole(targetID string, role models.Role) error {
	me, err := s.actor(models.RoleOwner)
	if err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	err = s.updateRow(targetID, func(a *models.Account) error {
		a.Role = role
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("role changed", "user_id", targetID, "role", role, "by", me.ID)
	return nil
}

// Delete removes targetID from the directory. Owner only. The account's
// conversation partition is left in place.
func (s *Service) Delete(targetID string) error {
	me, err := s.actor(models.RoleOwner)
	if err != nil {
		return err
	}
	if targetID == me.ID {
		return fmt.Errorf("%w: cannot delete yourself", ErrForbidden)
	}
	err = s.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
		for i := range dir {
			if dir[i].ID == targetID {
				return append(dir[:i], dir[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("account %s: %w", targetID, models.ErrNotFound)
	})
	if err != nil {
		return err
	}
	s.log.Info("account deleted", "user_id", targetID, "by", me.ID)
	return nil
}
