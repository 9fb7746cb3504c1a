// services/authcore_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// AuthCoreClient talks to the federated identity provider: token
// verification, profile reads/writes and custodial wallet creation.
type AuthCoreClient struct {
	BaseURL      string
	ServiceToken string
	Client       *http.Client
}

// AuthCoreUser is the subset of the provider's profile this service
// consumes.
type AuthCoreUser struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Phone             string `json:"phone_number"`
	PhoneVerified     bool   `json:"phone_number_verified"`
	PreferredUsername string `json:"preferred_username"`
	DisplayName       string `json:"name"`
}

// CosmosWallets is the custodial wallet pair minted by the provider.
type CosmosWallets struct {
	CosmosWallet string `json:"cosmos_wallet"`
	LikeWallet   string `json:"like_wallet"`
}

func NewAuthCoreClient(baseURL, serviceToken string) *AuthCoreClient {
	return &AuthCoreClient{
		BaseURL:      baseURL,
		ServiceToken: serviceToken,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *AuthCoreClient) post(path, bearer string, reqBody, out interface{}) error {
	jsonData, _ := json.Marshal(reqBody)
	req, err := http.NewRequest("POST", c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("AuthCore %s returned %d: %s", path, resp.StatusCode, string(body))
		return fmt.Errorf("authcore request failed: %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(body, out)
	}
	return nil
}

// VerifyIDToken validates an id token and returns the claims it
// carries.
func (c *AuthCoreClient) VerifyIDToken(idToken string) (*AuthCoreUser, error) {
	var out AuthCoreUser
	if err := c.post("/oauth/verify", c.ServiceToken, map[string]interface{}{
		"id_token": idToken,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches the provider profile behind a user access token.
func (c *AuthCoreClient) GetUser(accessToken string) (*AuthCoreUser, error) {
	var out AuthCoreUser
	if err := c.post("/oauth/userinfo", accessToken, map[string]interface{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser pushes handle/display-name back to the provider. A 400
// means nothing changed; callers treat that as success.
func (c *AuthCoreClient) UpdateUser(authCoreUserID, user, displayName string) error {
	return c.post("/management/users/"+authCoreUserID, c.ServiceToken, map[string]interface{}{
		"username":     user,
		"display_name": displayName,
	}, nil)
}

// CreateCosmosWallet mints the custodial wallet pair for the user the
// access token belongs to.
func (c *AuthCoreClient) CreateCosmosWallet(accessToken string) (*CosmosWallets, error) {
	var out CosmosWallets
	if err := c.post("/management/wallets/cosmos", accessToken, map[string]interface{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
