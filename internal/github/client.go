package github

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/nacl/box"

	"github.com/mapfold/geopipeline/internal/errors"
)

const defaultBaseURL = "https://api.github.com"

// notFoundMarker is the payload marker GitHub returns for both a missing
// repository and an invalid token.
const notFoundMarker = "Not Found"

// Client is a minimal GitHub REST API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}

// ValidateRepo confirms the token can see the repository before any
// provisioning proceeds. A 404 (or the "Not Found" payload marker) means the
// repository is missing or the token is invalid; any other non-2xx status is
// also surfaced instead of being silently treated as success.
func (c *Client) ValidateRepo(ctx context.Context, ref RepoRef) error {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", ref.Owner, ref.Name), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach GitHub API: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound || strings.Contains(string(body), notFoundMarker) {
		return fmt.Errorf("%w: %s", errors.ErrRepoNotFound, ref)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to validate repository %s: status %d, body: %s", ref, resp.StatusCode, string(body))
	}
	return nil
}

type publicKey struct {
	KeyID string `json:"key_id"`
	Key   string `json:"key"`
}

type secretRequest struct {
	EncryptedValue string `json:"encrypted_value"`
	KeyID          string `json:"key_id"`
}

func (c *Client) getPublicKey(ctx context.Context, ref RepoRef) (*publicKey, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/actions/secrets/public-key", ref.Owner, ref.Name), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch public key: status %d, body: %s", resp.StatusCode, string(body))
	}

	var key publicKey
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	return &key, nil
}

// encryptSecret seals a value with the repository public key (libsodium
// sealed box, as the Actions secrets API requires).
func encryptSecret(publicKeyBase64, value string) (string, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return "", fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(keyBytes) != 32 {
		return "", fmt.Errorf("invalid public key length: expected 32, got %d", len(keyBytes))
	}

	var key [32]byte
	copy(key[:], keyBytes)

	sealed, err := box.SealAnonymous(nil, []byte(value), &key, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// PutSecret creates or updates a repository Actions secret.
func (c *Client) PutSecret(ctx context.Context, ref RepoRef, name, value string) error {
	key, err := c.getPublicKey(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get public key: %w", err)
	}

	encrypted, err := encryptSecret(key.Key, value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	payload, err := json.Marshal(secretRequest{
		EncryptedValue: encrypted,
		KeyID:          key.KeyID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/%s/actions/secrets/%s", ref.Owner, ref.Name, name), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create/update secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to create/update secret: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}
