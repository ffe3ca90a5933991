// Package models defines types shared across internal packages.
package models

import "time"

// Credential holds the stored authentication material for one character.
// AccessToken and RefreshToken are AES-GCM sealed by the credential store
// before they reach disk; the plaintext values only exist in memory on a
// Credential returned by Get.
type Credential struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	Expiry        time.Time `json:"expiry"`
	Scopes        []string  `json:"scopes,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CredentialSummary is the secret-free view of a stored credential,
// returned by bulk listings.
type CredentialSummary struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	Expiry        time.Time `json:"expiry"`
	Scopes        []string  `json:"scopes,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TokenResponse is the SSO token endpoint response for both the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// VerifyResponse is the SSO verify endpoint response. The scope list it
// carries is the provider's record of what was actually granted, which is
// authoritative over what was requested.
type VerifyResponse struct {
	CharacterID   int64  `json:"character_id"`
	CharacterName string `json:"character_name"`
	Scopes        string `json:"scopes"`
}

// Asset is one inventory row belonging to a character. LocationID is
// ambiguous by design: it names either a station/system/structure or the
// ItemID of another asset in the same set (the row is fitted to or stored
// inside that asset). The distinction is resolved structurally.
type Asset struct {
	ItemID          int64  `json:"item_id"`
	TypeID          int64  `json:"type_id"`
	Quantity        int64  `json:"quantity"`
	LocationID      int64  `json:"location_id"`
	LocationFlag    string `json:"location_flag"`
	IsSingleton     bool   `json:"is_singleton"`
	IsBlueprintCopy bool   `json:"is_blueprint_copy,omitempty"`
}

// LocationKind classifies a resolved location.
type LocationKind string

const (
	LocationStation   LocationKind = "station"
	LocationSystem    LocationKind = "system"
	LocationStructure LocationKind = "structure"
	LocationUnknown   LocationKind = "unknown"
)

// SecurityBand is the coarse security classification of a solar system.
type SecurityBand string

const (
	SecurityHigh SecurityBand = "highsec"
	SecurityLow  SecurityBand = "lowsec"
	SecurityNull SecurityBand = "nullsec"
)

// ClassifySecurity maps a raw security status to its band.
// The boundaries are exact: 0.5 is highsec, 0.49999 is lowsec, 0.0 is nullsec.
func ClassifySecurity(status float64) SecurityBand {
	switch {
	case status >= 0.5:
		return SecurityHigh
	case status > 0.0:
		return SecurityLow
	default:
		return SecurityNull
	}
}

// ResolvedLocation is the display form of a raw location ID. Derived per
// resolution pass and never persisted.
type ResolvedLocation struct {
	LocationID int64        `json:"location_id"`
	Name       string       `json:"name"`
	Kind       LocationKind `json:"kind"`
	SystemID   int64        `json:"system_id,omitempty"`
	SystemName string       `json:"system_name,omitempty"`
	Security   SecurityBand `json:"security,omitempty"`
	RegionID   int64        `json:"region_id,omitempty"`
	RegionName string       `json:"region_name,omitempty"`
}

// AssetNode is one asset plus the assets nested inside it.
type AssetNode struct {
	Asset    Asset       `json:"asset"`
	Children []AssetNode `json:"children,omitempty"`
}

// LocationGroup is the top level of the reconstructed hierarchy: the assets
// standing at one raw location, hierarchy-annotated.
type LocationGroup struct {
	Location ResolvedLocation `json:"location"`
	Assets   []AssetNode      `json:"assets"`
}
