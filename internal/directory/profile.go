package directory

import (
	"fmt"
	"strings"
	"time"

	"nexus/internal/content"
	"nexus/internal/models"
)

// Cooldown is the minimum time between id changes for role.
func Cooldown(role models.Role) time.Duration {
	const day = 24 * time.Hour
	switch role {
	case models.RoleOwner:
		return 0
	case models.RoleAdmin:
		return 10 * day
	default:
		return 30 * day
	}
}

// ChangeID gives the current user a new account id. Owners may pick any
// non-empty id at any time; everyone else is limited to 5-15 letters or
// digits and to one change per cooldown period.
func (s *Service) ChangeID(newID string) (models.Account, error) {
	me, err := s.store.RequireCurrentUser()
	if err != nil {
		return models.Account{}, err
	}

	id := strings.TrimSpace(newID)
	if me.Role == models.RoleOwner {
		if id == "" {
			return models.Account{}, fmt.Errorf("%w: id cannot be empty", ErrInvalidID)
		}
	} else {
		id = content.NormalizeAccountID(id)
		if err := content.ValidateAccountID(id); err != nil {
			return models.Account{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
	}
	if id == me.ID {
		return me, nil
	}

	now := s.now()
	if me.LastIDChange > 0 {
		next := time.UnixMilli(me.LastIDChange).Add(Cooldown(me.Role))
		if now.Before(next) {
			days := int(next.Sub(now).Hours()/24) + 1
			return models.Account{}, fmt.Errorf("%w: next change available in %d days", ErrCooldown, days)
		}
	}

	err = s.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
		self := -1
		for i, a := range dir {
			if a.ID == id {
				return nil, ErrIDTaken
			}
			if a.ID == me.ID {
				self = i
			}
		}
		if self < 0 {
			return nil, fmt.Errorf("account %s: %w", me.ID, models.ErrNotFound)
		}
		dir[self].ID = id
		dir[self].LastIDChange = now.UnixMilli()
		return dir, nil
	})
	if err != nil {
		return models.Account{}, err
	}

	if err := s.store.MoveChats(me.ID, id); err != nil {
		return models.Account{}, err
	}

	old := me.ID
	me.ID = id
	me.LastIDChange = now.UnixMilli()
	if err := s.store.SaveCurrentUser(me); err != nil {
		return models.Account{}, err
	}
	s.log.Info("account id changed", "user_id", id, "previous_id", old)
	return me, nil
}

// ProfileUpdate carries the fields to change; nil fields are kept.
type ProfileUpdate struct {
	Name        *string
	Bio         *string
	Avatar      *string
	Theme       *models.Theme
	CustomColor *string
	LiquidGlass *bool
	Settings    *models.Settings
}

func (s *Service) UpdateProfile(u ProfileUpdate) (models.Account, error) {
	return s.updateSelf(func(me *models.Account) error {
		if u.Name != nil {
			name := content.PlainText(*u.Name)
			if name == "" {
				return fmt.Errorf("%w: name", ErrMissingField)
			}
			me.Name = name
		}
		if u.Bio != nil {
			me.Bio = content.Sanitize(strings.TrimSpace(*u.Bio))
		}
		if u.Avatar != nil {
			me.Avatar = strings.TrimSpace(*u.Avatar)
		}
		if u.Theme != nil {
			me.Theme = *u.Theme
		}
		if u.CustomColor != nil && me.Role == models.RoleOwner && me.Theme == models.ThemeCustom {
			me.CustomColor = *u.CustomColor
		}
		if u.LiquidGlass != nil {
			me.LiquidGlass = *u.LiquidGlass
		}
		if u.Settings != nil {
			me.Settings = *u.Settings
		}
		return nil
	})
}

// AddContact saves userID to the address book under displayName, or
// under the account's own name when displayName is empty.
func (s *Service) AddContact(userID, displayName string) (models.Account, error) {
	target, err := s.Lookup(userID)
	if err != nil {
		return models.Account{}, err
	}
	return s.updateSelf(func(me *models.Account) error {
		name := content.PlainText(displayName)
		if name == "" {
			name = target.Name
		}
		for i := range me.SavedContacts {
			if me.SavedContacts[i].UserID == userID {
				me.SavedContacts[i].DisplayName = name
				return nil
			}
		}
		me.SavedContacts = append(me.SavedContacts, models.SavedContact{
			UserID:       target.ID,
			DisplayName:  name,
			OriginalName: target.Name,
			Avatar:       target.Avatar,
		})
		return nil
	})
}

func (s *Service) RenameContact(userID, displayName string) (models.Account, error) {
	return s.updateSelf(func(me *models.Account) error {
		name := content.PlainText(displayName)
		if name == "" {
			return fmt.Errorf("%w: name", ErrMissingField)
		}
		for i := range me.SavedContacts {
			if me.SavedContacts[i].UserID == userID {
				me.SavedContacts[i].DisplayName = name
				return nil
			}
		}
		return fmt.Errorf("contact %s: %w", userID, models.ErrNotFound)
	})
}

func (s *Service) RemoveContact(userID string) (models.Account, error) {
	return s.updateSelf(func(me *models.Account) error {
		for i := range me.SavedContacts {
			if me.SavedContacts[i].UserID == userID {
				me.SavedContacts = append(me.SavedContacts[:i], me.SavedContacts[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("contact %s: %w", userID, models.ErrNotFound)
	})
}

// updateSelf applies fn to the current user and writes the result to both
// the current-user record and the directory row. The row keeps its secret.
func (s *Service) updateSelf(fn func(*models.Account) error) (models.Account, error) {
	me, err := s.store.RequireCurrentUser()
	if err != nil {
		return models.Account{}, err
	}
	if err := fn(&me); err != nil {
		return models.Account{}, err
	}

	err = s.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
		for i := range dir {
			if dir[i].ID == me.ID {
				me.Role = dir[i].Role
				me.Status = dir[i].Status
				me.BanDetails = dir[i].BanDetails
				row := me
				row.Secret = dir[i].Secret
				dir[i] = row
				return dir, nil
			}
		}
		return nil, fmt.Errorf("account %s: %w", me.ID, models.ErrNotFound)
	})
	if err != nil {
		return models.Account{}, err
	}
	if err := s.store.SaveCurrentUser(me); err != nil {
		return models.Account{}, err
	}
	return me, nil
}
