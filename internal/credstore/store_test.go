package credstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alexjbarnes/hangar-sync/internal/errors"
	"github.com/alexjbarnes/hangar-sync/internal/models"
	"github.com/alexjbarnes/hangar-sync/internal/state"
)

func testStore(t *testing.T) (*Store, *state.State) {
	t.Helper()

	st, err := state.Load(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s, err := New(st, testSecret(), nil)
	require.NoError(t, err)

	return s, st
}

func pilotCredential(id int64, name string) models.Credential {
	return models.Credential{
		CharacterID:   id,
		CharacterName: name,
		AccessToken:   "access-" + name,
		RefreshToken:  "refresh-" + name,
		Expiry:        time.Now().Add(20 * time.Minute),
		Scopes:        []string{"esi-assets.read_assets.v1"},
		UpdatedAt:     time.Now(),
	}
}

// --- Put / Get ---

func TestPutGet_RoundTripOpensTokens(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))

	c, err := s.Get(100)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "access-Alice", c.AccessToken)
	assert.Equal(t, "refresh-Alice", c.RefreshToken)
	assert.Equal(t, "Alice", c.CharacterName)
}

func TestPut_TokensSealedAtRest(t *testing.T) {
	s, st := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))

	raw, err := st.GetCredential(100)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.NotEqual(t, "access-Alice", raw.AccessToken)
	assert.NotEqual(t, "refresh-Alice", raw.RefreshToken)
	assert.NotContains(t, raw.AccessToken, "access-Alice")
}

func TestGet_NilWhenAbsent(t *testing.T) {
	s, _ := testStore(t)
	c, err := s.Get(999)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestPut_FirstCredentialBecomesSelected(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))

	selected, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, int64(100), selected)
}

func TestPut_SecondCredentialDoesNotStealSelection(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, s.Put(pilotCredential(200, "Bob")))

	selected, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, int64(100), selected)
}

// --- List ---

func TestList_CarriesNoSecrets(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, s.Put(pilotCredential(200, "Bob")))

	summaries, err := s.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Alice", summaries[0].CharacterName)
	assert.Equal(t, "Bob", summaries[1].CharacterName)
}

func TestList_EmptyStore(t *testing.T) {
	s, _ := testStore(t)
	summaries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

// --- UpdateTokens ---

func TestUpdateTokens_ReplacesPairKeepsIdentity(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))

	newExpiry := time.Now().Add(time.Hour)
	require.NoError(t, s.UpdateTokens(100, "new-access", "new-refresh", newExpiry))

	c, err := s.Get(100)
	require.NoError(t, err)
	assert.Equal(t, "new-access", c.AccessToken)
	assert.Equal(t, "new-refresh", c.RefreshToken)
	assert.Equal(t, "Alice", c.CharacterName)
	assert.WithinDuration(t, newExpiry, c.Expiry, time.Second)
}

func TestUpdateTokens_UnknownCharacter(t *testing.T) {
	s, _ := testStore(t)
	err := s.UpdateTokens(999, "a", "r", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

// --- Remove / Invalidate ---

func TestRemove_DeletesCredentialAndAssets(t *testing.T) {
	s, st := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, st.PutAssets(100, []models.Asset{{ItemID: 1, TypeID: 587, Quantity: 1, LocationID: 60003760}}))

	require.NoError(t, s.Remove(100))

	c, err := s.Get(100)
	require.NoError(t, err)
	assert.Nil(t, c)

	assets, err := st.GetAssets(100)
	require.NoError(t, err)
	assert.Nil(t, assets)
}

func TestRemove_SelectionMovesToRemaining(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, s.Put(pilotCredential(200, "Bob")))

	require.NoError(t, s.Remove(100))

	selected, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, int64(200), selected)
}

func TestRemove_LastCredentialClearsSelection(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, s.Remove(100))

	selected, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, int64(0), selected)
}

func TestRemove_UnselectedCharacterKeepsSelection(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, s.Put(pilotCredential(200, "Bob")))

	require.NoError(t, s.Remove(200))

	selected, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, int64(100), selected)
}

func TestInvalidate_KeepsAssetCache(t *testing.T) {
	s, st := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, st.PutAssets(100, []models.Asset{{ItemID: 1, TypeID: 587, Quantity: 1, LocationID: 60003760}}))

	require.NoError(t, s.Invalidate(100))

	c, err := s.Get(100)
	require.NoError(t, err)
	assert.Nil(t, c)

	assets, err := st.GetAssets(100)
	require.NoError(t, err)
	require.Len(t, assets, 1)
}

// --- IsExpired ---

func TestIsExpired_FreshToken(t *testing.T) {
	s, _ := testStore(t)
	c := pilotCredential(100, "Alice")
	c.Expiry = time.Now().Add(time.Hour)
	require.NoError(t, s.Put(c))

	expired, err := s.IsExpired(100)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestIsExpired_InsideMargin(t *testing.T) {
	s, _ := testStore(t)
	c := pilotCredential(100, "Alice")
	c.Expiry = time.Now().Add(2 * time.Minute)
	require.NoError(t, s.Put(c))

	expired, err := s.IsExpired(100)
	require.NoError(t, err)
	assert.True(t, expired, "a token inside the expiry margin counts as expired")
}

func TestIsExpired_ExactMarginBoundary(t *testing.T) {
	s, _ := testStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	c := pilotCredential(100, "Alice")
	c.Expiry = base.Add(ExpiryMargin + time.Second)
	require.NoError(t, s.Put(c))

	expired, err := s.IsExpired(100)
	require.NoError(t, err)
	assert.False(t, expired)

	s.now = func() time.Time { return base.Add(2 * time.Second) }
	expired, err = s.IsExpired(100)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestIsExpired_UnknownCharacter(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.IsExpired(999)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

// --- Select ---

func TestSelect_RequiresStoredCredential(t *testing.T) {
	s, _ := testStore(t)
	err := s.Select(999)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestSelect_SwitchesCharacter(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.Put(pilotCredential(100, "Alice")))
	require.NoError(t, s.Put(pilotCredential(200, "Bob")))

	require.NoError(t, s.Select(200))

	selected, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, int64(200), selected)
}
