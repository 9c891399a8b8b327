package github

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/mapfold/geopipeline/internal/errors"
)

func TestValidateRepo(t *testing.T) {
	ref := RepoRef{Owner: "mapfold", Name: "map-pipeline"}

	t.Run("valid repository", func(t *testing.T) {
		var gotAuth, gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"full_name": "mapfold/map-pipeline"}`))
		}))
		defer server.Close()

		client := NewClientWithBaseURL("test-token", server.URL)
		err := client.ValidateRepo(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token", gotAuth)
		assert.Equal(t, "/repos/mapfold/map-pipeline", gotPath)
	})

	t.Run("404 means repo not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found"}`))
		}))
		defer server.Close()

		client := NewClientWithBaseURL("bad-token", server.URL)
		err := client.ValidateRepo(context.Background(), ref)
		assert.ErrorIs(t, err, errors.ErrRepoNotFound)
	})

	t.Run("not found marker in body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"message": "Not Found", "documentation_url": "https://docs.github.com"}`))
		}))
		defer server.Close()

		client := NewClientWithBaseURL("bad-token", server.URL)
		err := client.ValidateRepo(context.Background(), ref)
		assert.ErrorIs(t, err, errors.ErrRepoNotFound)
	})

	t.Run("other failures are not swallowed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message": "API rate limit exceeded"}`))
		}))
		defer server.Close()

		client := NewClientWithBaseURL("test-token", server.URL)
		err := client.ValidateRepo(context.Background(), ref)
		require.Error(t, err)
		assert.NotErrorIs(t, err, errors.ErrRepoNotFound)
		assert.Contains(t, err.Error(), "status 403")
	})
}

func TestPutSecret(t *testing.T) {
	ref := RepoRef{Owner: "mapfold", Name: "map-pipeline"}

	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var gotSecret secretRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/mapfold/map-pipeline/actions/secrets/public-key":
			json.NewEncoder(w).Encode(publicKey{
				KeyID: "key-1",
				Key:   base64.StdEncoding.EncodeToString(pub[:]),
			})
		case "/repos/mapfold/map-pipeline/actions/secrets/PIPELINE_BUCKET_NAME":
			require.Equal(t, http.MethodPut, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotSecret))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClientWithBaseURL("test-token", server.URL)
	err = client.PutSecret(context.Background(), ref, "PIPELINE_BUCKET_NAME", "map-uploads-prod")
	require.NoError(t, err)

	assert.Equal(t, "key-1", gotSecret.KeyID)

	// The sealed box must decrypt back to the original value.
	sealed, err := base64.StdEncoding.DecodeString(gotSecret.EncryptedValue)
	require.NoError(t, err)
	opened, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	require.True(t, ok)
	assert.Equal(t, "map-uploads-prod", string(opened))
}

func TestPutSecretPublicKeyFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("test-token", server.URL)
	err := client.PutSecret(context.Background(), RepoRef{Owner: "a", Name: "b"}, "NAME", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key")
}

func TestEncryptSecretRejectsBadKey(t *testing.T) {
	_, err := encryptSecret(base64.StdEncoding.EncodeToString([]byte("short")), "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid public key length")
}
