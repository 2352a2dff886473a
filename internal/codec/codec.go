// Package codec converts the persisted record families to and from their
// JSON text form. Decoders resolve every optional field to its default so
// callers always observe fully populated records.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"nexus/internal/models"
)

var ErrEmpty = errors.New("empty record")

// rawAccount mirrors models.Account with nullable fields so that absent
// values can be told apart from zero values.
type rawAccount struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Email         string                `json:"email"`
	Secret        string                `json:"password"`
	Avatar        string                `json:"avatar"`
	Theme         models.Theme          `json:"theme"`
	CustomColor   string                `json:"customColor"`
	LiquidGlass   bool                  `json:"liquidGlass"`
	Bio           string                `json:"bio"`
	Status        string                `json:"status"`
	Role          models.Role           `json:"role"`
	Visibility    models.Visibility     `json:"visibility"`
	Settings      *rawSettings          `json:"settings"`
	SavedContacts []models.SavedContact `json:"savedContacts"`
	BanDetails    *models.BanDetails    `json:"banDetails"`
	LastIDChange  int64                 `json:"lastIdChange"`
	IsAI          bool                  `json:"isAI"`
}

type rawSettings struct {
	Notifications *bool `json:"notifications"`
	Sound         *bool `json:"sound"`
	ReadReceipts  *bool `json:"readReceipts"`
}

func (r rawAccount) resolve() models.Account {
	a := models.Account{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Secret:        r.Secret,
		Avatar:        r.Avatar,
		Theme:         r.Theme,
		CustomColor:   r.CustomColor,
		LiquidGlass:   r.LiquidGlass,
		Bio:           r.Bio,
		Status:        r.Status,
		Role:          r.Role,
		Visibility:    r.Visibility,
		Settings:      models.DefaultSettings(),
		SavedContacts: r.SavedContacts,
		BanDetails:    r.BanDetails,
		LastIDChange:  r.LastIDChange,
		IsAI:          r.IsAI,
	}
	if !a.Role.Valid() {
		a.Role = models.RoleUser
	}
	if !a.Visibility.Valid() {
		a.Visibility = models.VisibilityPublic
	}
	if a.Theme == "" {
		a.Theme = models.ThemeCosmic
	}
	if a.SavedContacts == nil {
		a.SavedContacts = []models.SavedContact{}
	}
	if s := r.Settings; s != nil {
		if s.Notifications != nil {
			a.Settings.Notifications = *s.Notifications
		}
		if s.Sound != nil {
			a.Settings.Sound = *s.Sound
		}
		if s.ReadReceipts != nil {
			a.Settings.ReadReceipts = *s.ReadReceipts
		}
	}
	return a
}

// DecodeAccount parses the current-user record.
func DecodeAccount(text string) (models.Account, error) {
	if text == "" || text == "null" {
		return models.Account{}, ErrEmpty
	}
	var raw rawAccount
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return models.Account{}, fmt.Errorf("decode account: %w", err)
	}
	if raw.ID == "" {
		return models.Account{}, fmt.Errorf("decode account: %w", ErrEmpty)
	}
	return raw.resolve(), nil
}

// DecodeDirectory parses the global directory. Entries that are not
// objects or carry no id are skipped; only a malformed array is an error.
func DecodeDirectory(text string) ([]models.Account, error) {
	if text == "" {
		return []models.Account{}, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return []models.Account{}, fmt.Errorf("decode directory: %w", err)
	}
	out := make([]models.Account, 0, len(entries))
	for _, e := range entries {
		var raw rawAccount
		if err := json.Unmarshal(e, &raw); err != nil || raw.ID == "" {
			continue
		}
		out = append(out, raw.resolve())
	}
	return out, nil
}

// DecodeChats parses one account's conversation list.
func DecodeChats(text string) ([]models.Chat, error) {
	if text == "" {
		return []models.Chat{}, nil
	}
	var chats []models.Chat
	if err := json.Unmarshal([]byte(text), &chats); err != nil {
		return []models.Chat{}, fmt.Errorf("decode chats: %w", err)
	}
	out := chats[:0]
	for _, c := range chats {
		if c.ID == "" {
			continue
		}
		out = append(out, resolveChat(c))
	}
	if out == nil {
		out = []models.Chat{}
	}
	return out, nil
}

func resolveChat(c models.Chat) models.Chat {
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.Type == "" {
			m.Type = models.MessageTypeText
		}
		if m.Sender == "" {
			m.Sender = models.SenderThem
		}
		if m.Status == "" {
			m.Status = models.StatusSent
		}
	}
	return c
}

// Encode serialises any record family to its stored text form.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(data), nil
}
