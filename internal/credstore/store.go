package credstore

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/hangar-sync/internal/errors"
	"github.com/alexjbarnes/hangar-sync/internal/models"
	"github.com/alexjbarnes/hangar-sync/internal/state"
)

// ExpiryMargin is how close to expiry an access token may get before
// IsExpired reports true. Refresh runs early, not at the expiry instant.
const ExpiryMargin = 5 * time.Minute

// Store is the credential store. Token fields are sealed before they reach
// the state layer and opened on the way out; bulk listings never carry
// secrets. Mutations for one character are serialized through a
// per-character lock so concurrent refresh paths cannot lose an update.
type Store struct {
	state  *state.State
	box    *cipherBox
	logger *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	// now is swappable for expiry tests.
	now func() time.Time
}

// New creates a store over the given state database and master secret.
func New(st *state.State, secret []byte, logger *slog.Logger) (*Store, error) {
	box, err := newCipherBox(secret)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		state:  st,
		box:    box,
		logger: logger,
		locks:  make(map[int64]*sync.Mutex),
		now:    time.Now,
	}, nil
}

// charLock returns the mutation lock for one character, creating it on
// first use.
func (s *Store) charLock(characterID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[characterID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[characterID] = l
	}

	return l
}

// Put seals and persists a credential. When no character is selected yet,
// the new one becomes selected.
func (s *Store) Put(c models.Credential) error {
	l := s.charLock(c.CharacterID)
	l.Lock()
	defer l.Unlock()

	sealed, err := s.sealTokens(c)
	if err != nil {
		return err
	}

	if err := s.state.SaveCredential(sealed); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}

	selected, err := s.state.SelectedCharacter()
	if err != nil {
		return fmt.Errorf("reading selected character: %w", err)
	}

	if selected == 0 {
		if err := s.state.SetSelectedCharacter(c.CharacterID); err != nil {
			return fmt.Errorf("selecting character: %w", err)
		}
	}

	s.logger.Info("credential stored",
		slog.Int64("character_id", c.CharacterID),
		slog.String("character_name", c.CharacterName),
	)

	return nil
}

// Get returns the credential with token fields opened, or nil when the
// character has none.
func (s *Store) Get(characterID int64) (*models.Credential, error) {
	c, err := s.state.GetCredential(characterID)
	if err != nil {
		return nil, fmt.Errorf("reading credential: %w", err)
	}

	if c == nil {
		return nil, nil
	}

	access, err := s.box.open(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("opening access token: %w", err)
	}

	refresh, err := s.box.open(c.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("opening refresh token: %w", err)
	}

	c.AccessToken = access
	c.RefreshToken = refresh

	return c, nil
}

// List returns secret-free summaries of every stored credential.
func (s *Store) List() ([]models.CredentialSummary, error) {
	creds, err := s.state.AllCredentials()
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	summaries := make([]models.CredentialSummary, 0, len(creds))
	for _, c := range creds {
		summaries = append(summaries, models.CredentialSummary{
			CharacterID:   c.CharacterID,
			CharacterName: c.CharacterName,
			Expiry:        c.Expiry,
			Scopes:        c.Scopes,
			UpdatedAt:     c.UpdatedAt,
		})
	}

	return summaries, nil
}

// UpdateTokens replaces the token pair and expiry for one character,
// leaving identity fields untouched. Read-modify-write runs under the
// character's lock.
func (s *Store) UpdateTokens(characterID int64, accessToken, refreshToken string, expiry time.Time) error {
	l := s.charLock(characterID)
	l.Lock()
	defer l.Unlock()

	c, err := s.state.GetCredential(characterID)
	if err != nil {
		return fmt.Errorf("reading credential: %w", err)
	}

	if c == nil {
		return fmt.Errorf("%w: %d", errors.ErrUnauthenticated, characterID)
	}

	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.Expiry = expiry
	c.UpdatedAt = s.now()

	sealed, err := s.sealTokens(*c)
	if err != nil {
		return err
	}

	if err := s.state.SaveCredential(sealed); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}

	return nil
}

// Remove deletes a character's credential and cached assets. When the
// removed character was selected, selection moves to any remaining
// character, or clears.
func (s *Store) Remove(characterID int64) error {
	l := s.charLock(characterID)
	l.Lock()
	defer l.Unlock()

	if err := s.state.DeleteCredential(characterID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	if err := s.state.DeleteAssets(characterID); err != nil {
		return fmt.Errorf("deleting cached assets: %w", err)
	}

	if err := s.reassignSelected(characterID); err != nil {
		return err
	}

	s.logger.Info("credential removed", slog.Int64("character_id", characterID))

	return nil
}

// reassignSelected moves the selected pointer off a removed character:
// to any remaining character, or cleared when none are left.
func (s *Store) reassignSelected(removedID int64) error {
	selected, err := s.state.SelectedCharacter()
	if err != nil {
		return fmt.Errorf("reading selected character: %w", err)
	}

	if selected != removedID {
		return nil
	}

	remaining, err := s.state.AllCredentials()
	if err != nil {
		return fmt.Errorf("listing credentials: %w", err)
	}

	var next int64
	if len(remaining) > 0 {
		next = remaining[0].CharacterID
	}

	if err := s.state.SetSelectedCharacter(next); err != nil {
		return fmt.Errorf("updating selected character: %w", err)
	}

	return nil
}

// Invalidate drops a credential that the provider has declared unusable
// (refresh failure, or rejection after refresh). Unlike Remove, the cached
// asset set stays so reads can still degrade to it.
func (s *Store) Invalidate(characterID int64) error {
	l := s.charLock(characterID)
	l.Lock()
	defer l.Unlock()

	if err := s.state.DeleteCredential(characterID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	if err := s.reassignSelected(characterID); err != nil {
		return err
	}

	s.logger.Warn("credential invalidated", slog.Int64("character_id", characterID))

	return nil
}

// IsExpired reports whether the character's access token is within the
// safety margin of expiry.
func (s *Store) IsExpired(characterID int64) (bool, error) {
	c, err := s.state.GetCredential(characterID)
	if err != nil {
		return false, fmt.Errorf("reading credential: %w", err)
	}

	if c == nil {
		return false, fmt.Errorf("%w: %d", errors.ErrUnauthenticated, characterID)
	}

	return s.now().Add(ExpiryMargin).After(c.Expiry), nil
}

// Selected returns the currently selected character id, or 0 when none.
func (s *Store) Selected() (int64, error) {
	return s.state.SelectedCharacter()
}

// Select makes the given character the selected one. The character must
// have a stored credential.
func (s *Store) Select(characterID int64) error {
	c, err := s.state.GetCredential(characterID)
	if err != nil {
		return fmt.Errorf("reading credential: %w", err)
	}

	if c == nil {
		return fmt.Errorf("%w: %d", errors.ErrUnauthenticated, characterID)
	}

	return s.state.SetSelectedCharacter(characterID)
}

func (s *Store) sealTokens(c models.Credential) (models.Credential, error) {
	access, err := s.box.seal(c.AccessToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("sealing access token: %w", err)
	}

	refresh, err := s.box.seal(c.RefreshToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("sealing refresh token: %w", err)
	}

	c.AccessToken = access
	c.RefreshToken = refresh

	return c, nil
}
