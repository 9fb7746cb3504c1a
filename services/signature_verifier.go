// services/signature_verifier.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"engagement-api/utils"
)

// EVMSignPayload is a signed login/register challenge from an EVM
// wallet.
type EVMSignPayload struct {
	Wallet    string `json:"wallet"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Action    string `json:"action"` // "register" or "login"
}

// CosmosSignPayload is the cosmos-family equivalent.
type CosmosSignPayload struct {
	Wallet     string `json:"wallet"`
	Message    string `json:"message"`
	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`
	SignMethod string `json:"sign_method,omitempty"`
}

// SignatureVerifier abstracts wallet signature verification. The
// cryptography lives in the wallet service, not in this process; this
// core only consumes the verdict.
type SignatureVerifier interface {
	// VerifyEVM returns the checksummed wallet address the signature
	// proves control of.
	VerifyEVM(p EVMSignPayload) (string, error)
	// VerifyCosmos returns the canonical cosmos- and like-prefixed
	// addresses for the signing key.
	VerifyCosmos(p CosmosSignPayload) (*CosmosWallets, error)
}

type walletServiceVerifier struct {
	baseURL string
	client  *http.Client
}

// NewWalletServiceVerifier builds the default HTTP-backed verifier.
func NewWalletServiceVerifier(baseURL string) SignatureVerifier {
	return &walletServiceVerifier{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (v *walletServiceVerifier) post(path string, reqBody, out interface{}) error {
	jsonData, _ := json.Marshal(reqBody)
	resp, err := v.client.Post(v.baseURL+path, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return utils.NewValidationError("INVALID_SIGN")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet verify failed: %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func (v *walletServiceVerifier) VerifyEVM(p EVMSignPayload) (string, error) {
	var out struct {
		Wallet string `json:"wallet"`
	}
	if err := v.post("/verify/evm", p, &out); err != nil {
		return "", err
	}
	return out.Wallet, nil
}

func (v *walletServiceVerifier) VerifyCosmos(p CosmosSignPayload) (*CosmosWallets, error) {
	var out CosmosWallets
	if err := v.post("/verify/cosmos", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
