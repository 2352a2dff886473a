package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
)

// Role is an ordered privilege level.
type Role string

const (
	RoleUser        Role = "user"
	RoleSupporter   Role = "supporter"
	RoleHelper      Role = "helper"
	RoleHeadHelper  Role = "head_helper"
	RoleAdmin       Role = "admin"
	RoleHeadAdmin   Role = "head_admin"
	RoleManager     Role = "manager"
	RoleHeadManager Role = "head_manager"
	RoleOwner       Role = "owner"
)

var roleRank = map[Role]int{
	RoleUser:        0,
	RoleSupporter:   1,
	RoleHelper:      2,
	RoleHeadHelper:  3,
	RoleAdmin:       4,
	RoleHeadAdmin:   5,
	RoleManager:     6,
	RoleHeadManager: 7,
	RoleOwner:       8,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is the same as or above other.
// Unknown roles rank as RoleUser.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityHidden    Visibility = "hidden"
	VisibilityOwnerOnly Visibility = "owner-only"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityHidden, VisibilityOwnerOnly:
		return true
	}
	return false
}

type Theme string

const (
	ThemeCosmic Theme = "cosmic"
	ThemeOcean  Theme = "ocean"
	ThemeSunset Theme = "sunset"
	ThemeCustom Theme = "custom"
)

const StatusBanned = "banned"

type Settings struct {
	Notifications bool `json:"notifications"`
	Sound         bool `json:"sound"`
	ReadReceipts  bool `json:"readReceipts"`
}

func DefaultSettings() Settings {
	return Settings{Notifications: true, Sound: true, ReadReceipts: true}
}

type BanDetails struct {
	Reason   string `json:"reason"`
	Duration string `json:"duration"` // 1h, 24h, 7d or permanent
	BannedAt int64  `json:"bannedAt"`
}

// SavedContact is an address book entry with a user-chosen name.
type SavedContact struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	OriginalName string `json:"originalName"`
	Avatar       string `json:"avatar"`
}

// Account is both the current-user record and a directory row.
// Secret is only populated on directory rows.
type Account struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email,omitempty"`
	Secret        string         `json:"password,omitempty"`
	Avatar        string         `json:"avatar"`
	Theme         Theme          `json:"theme"`
	CustomColor   string         `json:"customColor,omitempty"`
	LiquidGlass   bool           `json:"liquidGlass,omitempty"`
	Bio           string         `json:"bio,omitempty"`
	Status        string         `json:"status,omitempty"`
	Role          Role           `json:"role"`
	Visibility    Visibility     `json:"visibility"`
	Settings      Settings       `json:"settings"`
	SavedContacts []SavedContact `json:"savedContacts"`
	BanDetails    *BanDetails    `json:"banDetails,omitempty"`
	LastIDChange  int64          `json:"lastIdChange,omitempty"`
	IsAI          bool           `json:"isAI,omitempty"`
}

// Public returns a copy of a without its secret.
func (a Account) Public() Account {
	a.Secret = ""
	return a
}

func (a Account) Banned() bool {
	return a.Status == StatusBanned
}

type Sender string

const (
	SenderMe   Sender = "me"
	SenderThem Sender = "them"
)

// Flip returns the sender as seen from the other side of a conversation.
func (s Sender) Flip() Sender {
	if s == SenderMe {
		return SenderThem
	}
	return SenderMe
}

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeAudio  MessageType = "audio"
	MessageTypeSystem MessageType = "system"
)

const (
	PreviewImage = "📸 Image"
	PreviewAudio = "🎤 Voice Message"
)

// Message is immutable once delivered except for Reaction and Status.
// Timestamp is in unix milliseconds.
type Message struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Timestamp   int64             `json:"timestamp"`
	Sender      Sender            `json:"sender"`
	Status      DeliveryStatus    `json:"status"`
	ReplyToID   string            `json:"replyToId,omitempty"`
	ReplyToText string            `json:"replyToText,omitempty"`
	Reaction    string            `json:"reaction,omitempty"`
	IsForwarded bool              `json:"isForwarded,omitempty"`
	IsPinned    bool              `json:"isPinned,omitempty"`
	Type        MessageType       `json:"type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewMessageID returns a time plus random id such as "msg-1700000000000-3f2a9c1".
func NewMessageID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), uuid.NewString()[:7])
}

// PreviewText is the conversation list preview for m.
func PreviewText(m Message) string {
	switch m.Type {
	case MessageTypeImage:
		return PreviewImage
	case MessageTypeAudio:
		return PreviewAudio
	default:
		return m.Text
	}
}

// Chat is one account's copy of a conversation with a counterpart.
// ID is the counterpart's account ID.
type Chat struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Avatar          string    `json:"avatar"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime int64     `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	IsOnline        bool      `json:"isOnline"`
	Messages        []Message `json:"messages"`
	IsAI            bool      `json:"isAI,omitempty"`
	IsSelf          bool      `json:"isSelf,omitempty"`
}

// MessageIndex returns the position of the message with the given id or -1.
func (c *Chat) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Append adds m at the end and refreshes the preview.
func (c *Chat) Append(m Message) {
	c.Messages = append(c.Messages, m)
	c.LastMessage = PreviewText(m)
	c.LastMessageTime = m.Timestamp
}

// Search returns messages whose text contains query, ignoring case.
func (c Chat) Search(query string) []Message {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.Messages
	}
	var out []Message
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Text), q) {
			out = append(out, m)
		}
	}
	return out
}

// ChatIndex returns the position of the chat with the given id or -1.
func ChatIndex(chats []Chat, id string) int {
	for i := range chats {
		if chats[i].ID == id {
			return i
		}
	}
	return -1
}

// MoveToFront moves chats[i] to position 0, keeping the order of the rest.
func MoveToFront(chats []Chat, i int) []Chat {
	if i <= 0 || i >= len(chats) {
		return chats
	}
	c := chats[i]
	copy(chats[1:i+1], chats[:i])
	chats[0] = c
	return chats
}

// SortByRecent returns a copy of chats ordered by last message time, newest first.
// Stored order breaks ties.
func SortByRecent(chats []Chat) []Chat {
	out := make([]Chat, len(chats))
	copy(out, chats)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime > out[j].LastMessageTime
	})
	return out
}
