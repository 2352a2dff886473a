// Package directory manages the global account directory: system seed,
// signup and login, profile and id changes, contacts and moderation.
package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"nexus/internal/assistant"
	"nexus/internal/content"
	"nexus/internal/models"
	"nexus/internal/nexusdb"
)

const (
	SentinelID = "DEV_OVERLORD"

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 10

	statusOnline = "online"
)

var (
	ErrIDTaken        = errors.New("account id is already taken")
	ErrInvalidID      = errors.New("invalid account id")
	ErrCooldown       = errors.New("account id change is on cooldown")
	ErrForbidden      = errors.New("not allowed")
	ErrEmailTaken     = errors.New("email already registered")
	ErrMissingField   = errors.New("all fields are required")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrBanned         = errors.New("account is banned")
	ErrThrottled      = errors.New("too many failed login attempts")
	ErrInvalidRole    = errors.New("unknown role")
	ErrInvalidBan     = errors.New("ban duration must be 1h, 24h, 7d or permanent")
)

type Service struct {
	store    *nexusdb.Store
	log      *slog.Logger
	now      func() time.Time
	cost     int
	throttle *throttle
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCost sets the bcrypt cost used for new secrets.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func New(store *nexusdb.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		log:      slog.Default(),
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
		throttle: newThrottle(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

func systemIdentities() []models.Account {
	return []models.Account{
		{
			ID:          "ARCHITECT01",
			Name:        "The Architect",
			Email:       "architect@nexus.core",
			Avatar:      "https://api.dicebear.com/7.x/avataaars/svg?seed=Architect&clothing=blazerAndShirt&accessories=sunglasses",
			Theme:       models.ThemeSunset,
			Status:      "god-mode",
			Role:        models.RoleOwner,
			Bio:         "Architect of the Nexus.",
			LiquidGlass: true,
			Visibility:  models.VisibilityPublic,
		},
		{
			ID:         "SYSADMIN001",
			Name:       "System Admin",
			Email:      "admin@nexus.com",
			Avatar:     "https://api.dicebear.com/7.x/avataaars/svg?seed=Admin&clothing=hoodie",
			Theme:      models.ThemeOcean,
			Status:     "monitoring",
			Role:       models.RoleAdmin,
			Bio:        "Maintaining dimensional stability.",
			Visibility: models.VisibilityPublic,
		},
		{
			ID:          SentinelID,
			Name:        "Nexus Developer",
			Email:       "dev@nexus.core",
			Avatar:      "https://api.dicebear.com/7.x/bottts/svg?seed=DevOverlord&backgroundColor=transparent",
			Theme:       models.ThemeCosmic,
			Status:      "coding",
			Role:        models.RoleOwner,
			Bio:         "Building the simulation.",
			LiquidGlass: true,
			Visibility:  models.VisibilityOwnerOnly,
		},
	}
}

func aiIdentities() []models.Account {
	return []models.Account{
		{
			ID:         assistant.ArchitectID,
			Name:       "Architect Core",
			Avatar:     "https://api.dicebear.com/7.x/bottts/svg?seed=ArchitectCore",
			Theme:      models.ThemeCosmic,
			Status:     statusOnline,
			Role:       models.RoleUser,
			Visibility: models.VisibilityPublic,
			IsAI:       true,
		},
		{
			ID:         assistant.HelperID,
			Name:       "Nexus Assistant",
			Avatar:     "https://api.dicebear.com/7.x/bottts/svg?seed=NexusAssistant",
			Theme:      models.ThemeCosmic,
			Status:     statusOnline,
			Role:       models.RoleUser,
			Visibility: models.VisibilityPublic,
			IsAI:       true,
		},
	}
}

// Seed resets the directory to the system identities when the sentinel
// identity is missing. It reports whether a reset happened.
func (s *Service) Seed(secret string) (bool, error) {
	if _, ok := s.store.Lookup(SentinelID); ok {
		return false, nil
	}
	hash, err := s.hash(secret)
	if err != nil {
		return false, err
	}

	seeded := false
	err = s.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
		if slices.ContainsFunc(dir, func(a models.Account) bool { return a.ID == SentinelID }) {
			return nil, nexusdb.ErrNoChange
		}
		out := systemIdentities()
		for i := range out {
			out[i].Secret = hash
			out[i].Settings = models.DefaultSettings()
			out[i].SavedContacts = []models.SavedContact{}
		}
		for _, a := range aiIdentities() {
			a.Settings = models.DefaultSettings()
			a.SavedContacts = []models.SavedContact{}
			out = append(out, a)
		}
		seeded = true
		return out, nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		s.log.Info("directory reset to system identities")
	}
	return seeded, nil
}

func generateID() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}

// Signup registers a new account and makes it the current user.
func (s *Service) Signup(name, email, secret string) (models.Account, error) {
	name = content.PlainText(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || secret == "" {
		return models.Account{}, ErrMissingField
	}
	if err := content.ValidateEmail(email); err != nil {
		return models.Account{}, err
	}
	hash, err := s.hash(secret)
	if err != nil {
		return models.Account{}, err
	}

	now := s.now()
	var created models.Account
	err = s.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
		for _, a := range dir {
			if strings.EqualFold(a.Email, email) {
				return nil, ErrEmailTaken
			}
		}
		id := generateID()
		for slices.ContainsFunc(dir, func(a models.Account) bool { return a.ID == id }) {
			id = generateID()
		}
		created = models.Account{
			ID:            id,
			Name:          name,
			Email:         email,
			Secret:        hash,
			Avatar:        "https://api.dicebear.com/7.x/avataaars/svg?seed=" + strings.ReplaceAll(name, " ", "%20"),
			Theme:         models.ThemeCosmic,
			Status:        statusOnline,
			Role:          models.RoleUser,
			Visibility:    models.VisibilityPublic,
			Settings:      models.DefaultSettings(),
			SavedContacts: []models.SavedContact{},
			LastIDChange:  now.UnixMilli(),
		}
		return append(dir, created), nil
	})
	if err != nil {
		return models.Account{}, err
	}

	if err := s.store.SaveCurrentUser(created); err != nil {
		return models.Account{}, err
	}
	s.log.Info("account created", "user_id", created.ID)
	return created.Public(), nil
}

// Login resolves identifier as an email or an account id, verifies the
// secret and makes the account the current user.
func (s *Service) Login(identifier, secret string) (models.Account, error) {
	now := s.now()
	ident := strings.TrimSpace(identifier)
	key := strings.ToLower(ident)
	if wait := s.throttle.check(key, now); wait > 0 {
		return models.Account{}, fmt.Errorf("%w: next attempt in %s", ErrThrottled, wait)
	}

	var match *models.Account
	dir := s.store.Directory()
	for i := range dir {
		a := &dir[i]
		if a.IsAI || a.Secret == "" {
			continue
		}
		if (a.Email != "" && strings.EqualFold(a.Email, ident)) || a.ID == strings.ToUpper(ident) || a.ID == ident {
			match = a
			break
		}
	}
	if match == nil || bcrypt.CompareHashAndPassword([]byte(match.Secret), []byte(secret)) != nil {
		s.throttle.fail(key, now)
		return models.Account{}, ErrBadCredentials
	}
	s.throttle.succeed(key, now)

	if match.Banned() {
		if !banExpired(match.BanDetails, now) {
			return models.Account{}, ErrBanned
		}
		if err := s.setBan(match.ID, nil); err != nil {
			return models.Account{}, err
		}
		match.Status = statusOnline
		match.BanDetails = nil
	}

	if err := s.store.SaveCurrentUser(*match); err != nil {
		return models.Account{}, err
	}
	s.log.Info("logged in", "user_id", match.ID)
	return match.Public(), nil
}

func (s *Service) Logout() error {
	return s.store.ClearCurrentUser()
}

// Lookup returns the public directory row for id.
func (s *Service) Lookup(id string) (models.Account, error) {
	a, ok := s.store.Lookup(id)
	if !ok {
		return models.Account{}, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return a.Public(), nil
}

// Search lists accounts viewer may start a conversation with whose name
// or id contains query.
func (s *Service) Search(viewer models.Account, query string) []models.Account {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []models.Account{}
	for _, a := range s.store.Directory() {
		if a.ID == viewer.ID {
			continue
		}
		switch a.Visibility {
		case models.VisibilityHidden:
			continue
		case models.VisibilityOwnerOnly:
			if viewer.Role != models.RoleOwner {
				continue
			}
		}
		if strings.Contains(strings.ToLower(a.Name), q) || strings.Contains(strings.ToLower(a.ID), q) {
			out = append(out, a.Public())
		}
	}
	return out
}

// Accounts returns every directory row without secrets.
func (s *Service) Accounts() []models.Account {
	dir := s.store.Directory()
	for i := range dir {
		dir[i] = dir[i].Public()
	}
	return dir
}
