// Package clients holds the outbound HTTP clients to sibling platform
// services consumed by the attribute resolver leaves: Profile (users),
// Register (parties) and the SBL bridge (Altinn 2 key roles).
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// UserProfile is the Profile service's view of a user.
type UserProfile struct {
	UserID  int    `json:"userId"`
	PartyID int    `json:"partyId"`
	SSN     string `json:"ssn,omitempty"`
	Party   *Party `json:"party,omitempty"`
}

// Party is the Register service's view of a party.
type Party struct {
	PartyID   int    `json:"partyId"`
	OrgNumber string `json:"orgNumber,omitempty"`
	SSN       string `json:"ssn,omitempty"`
	Name      string `json:"name,omitempty"`
	PartyType string `json:"partyTypeName,omitempty"`
}

// Profile looks up users.
type Profile interface {
	GetUser(ctx context.Context, userID int) (*UserProfile, error)
	GetUserBySSN(ctx context.Context, ssn string) (*UserProfile, error)
}

// Register looks up parties.
type Register interface {
	GetParty(ctx context.Context, partyID int) (*Party, error)
	LookupPartyByOrgNumber(ctx context.Context, orgNumber string) (*Party, error)
}

// SBLBridge exposes Altinn 2 role data.
type SBLBridge interface {
	// GetKeyRolePartyIDs returns the party ids the user holds a key
	// role for.
	GetKeyRolePartyIDs(ctx context.Context, userID int) ([]int, error)
}

// httpClient is the shared base for the service clients.
type httpClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func newHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) httpClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// getJSON performs a GET and decodes the JSON body into out. A 404
// returns (false, nil) so callers can distinguish "not found" from
// infrastructure failures.
func (c *httpClient) getJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s response: %w", path, err)
	}
	return true, nil
}

// ProfileClient is the HTTP Profile implementation.
type ProfileClient struct {
	httpClient
}

// NewProfileClient creates a Profile client for the given base URL.
func NewProfileClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ProfileClient {
	return &ProfileClient{newHTTPClient(baseURL, timeout, logger)}
}

// GetUser fetches a user by user id.
func (c *ProfileClient) GetUser(ctx context.Context, userID int) (*UserProfile, error) {
	var profile UserProfile
	found, err := c.getJSON(ctx, fmt.Sprintf("/users/%d", userID), &profile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &profile, nil
}

// GetUserBySSN fetches a user by national identity number.
func (c *ProfileClient) GetUserBySSN(ctx context.Context, ssn string) (*UserProfile, error) {
	var profile UserProfile
	found, err := c.getJSON(ctx, "/users/lookup?ssn="+url.QueryEscape(ssn), &profile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &profile, nil
}

// RegisterClient is the HTTP Register implementation.
type RegisterClient struct {
	httpClient
}

// NewRegisterClient creates a Register client for the given base URL.
func NewRegisterClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RegisterClient {
	return &RegisterClient{newHTTPClient(baseURL, timeout, logger)}
}

// GetParty fetches a party by party id.
func (c *RegisterClient) GetParty(ctx context.Context, partyID int) (*Party, error) {
	var party Party
	found, err := c.getJSON(ctx, fmt.Sprintf("/parties/%d", partyID), &party)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &party, nil
}

// LookupPartyByOrgNumber fetches a party by organization number.
func (c *RegisterClient) LookupPartyByOrgNumber(ctx context.Context, orgNumber string) (*Party, error) {
	var party Party
	found, err := c.getJSON(ctx, "/parties/lookup?orgNumber="+url.QueryEscape(orgNumber), &party)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &party, nil
}

// SBLBridgeClient is the HTTP SBL bridge implementation.
type SBLBridgeClient struct {
	httpClient
}

// NewSBLBridgeClient creates an SBL bridge client for the given base URL.
func NewSBLBridgeClient(baseURL string, timeout time.Duration, logger *zap.Logger) *SBLBridgeClient {
	return &SBLBridgeClient{newHTTPClient(baseURL, timeout, logger)}
}

// GetKeyRolePartyIDs fetches the party ids the user holds a key role for.
func (c *SBLBridgeClient) GetKeyRolePartyIDs(ctx context.Context, userID int) ([]int, error) {
	var partyIDs []int
	found, err := c.getJSON(ctx, fmt.Sprintf("/authorization/api/partieswithkeyroleaccess?userid=%d", userID), &partyIDs)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return partyIDs, nil
}
