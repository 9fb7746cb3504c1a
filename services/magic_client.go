// services/magic_client.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MagicClient resolves DID tokens issued by the Magic link provider
// into user metadata, used to pre-verify emails at wallet
// registration.
type MagicClient struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

type MagicUserMetadata struct {
	Issuer string `json:"issuer"`
	Email  string `json:"email"`
}

func NewMagicClient(baseURL, secretKey string) *MagicClient {
	return &MagicClient{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *MagicClient) GetUserMetadataByDIDToken(didToken string) (*MagicUserMetadata, error) {
	req, err := http.NewRequest("GET", c.BaseURL+"/v1/admin/auth/user/get", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Magic-Secret-Key", c.SecretKey)
	req.Header.Set("Authorization", "Bearer "+didToken)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("magic metadata lookup failed: %d", resp.StatusCode)
	}
	var out struct {
		Data MagicUserMetadata `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// VerifyEmailByMetadata reports whether the email the client claims
// matches the one Magic has on file.
func VerifyEmailByMetadata(email string, meta *MagicUserMetadata) bool {
	if meta == nil || meta.Email == "" || email == "" {
		return false
	}
	return strings.EqualFold(email, meta.Email)
}
