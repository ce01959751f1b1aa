package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/mapping"
)

func newGitCode(t *testing.T, handler http.HandlerFunc) (*GitCode, mapping.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := mapping.NewMemoryStore()
	g := NewGitCode(GitCodeConfig{
		APIURL:        server.URL + "/api/v5/",
		AccessToken:   "gc-token",
		WebhookSecret: "hook-secret",
		Timeout:       5 * time.Second,
	}, store, zerolog.Nop())
	g.SetHTTPClient(server.Client())
	return g, store
}

func TestGitCode_PostComment(t *testing.T) {
	var got createCommentRequest
	g, _ := newGitCode(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v5/repos/acme/widgets/issues/42/comments", r.URL.Path)
		assert.Equal(t, "token gc-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := g.PostComment(context.Background(), "acme/widgets", 42, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
}

func TestGitCode_PostComment_Error(t *testing.T) {
	g, _ := newGitCode(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"forbidden"}`))
	})

	err := g.PostComment(context.Background(), "acme/widgets", 42, "hello")
	require.Error(t, err)

	var apiErr *rerrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "gitcode", apiErr.Service)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "forbidden")
}

func TestGitCode_VerifyWebhook(t *testing.T) {
	g, _ := newGitCode(t, func(w http.ResponseWriter, r *http.Request) {})

	ok, err := g.VerifyWebhook([]byte(`{}`), "hook-secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.VerifyWebhook([]byte(`{}`), "hook-secreT")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.VerifyWebhook([]byte(`{}`), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGitCode_Mappings(t *testing.T) {
	g, store := newGitCode(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	_, ok, err := g.GetMapping(ctx, "acme/widgets", 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.StoreMapping(ctx, "acme/widgets", 42, "acme--widgets-42"))

	name, ok, err := store.Get(ctx, "acme/widgets", 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "acme--widgets-42", name)
}

func sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGitHub_VerifyWebhook(t *testing.T) {
	g, err := NewGitHub(GitHubConfig{WebhookSecret: "gh-secret"}, nil, mapping.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	payload := []byte(`{"action":"created"}`)

	ok, err := g.VerifyWebhook(payload, sign([]byte("gh-secret"), payload))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.VerifyWebhook(payload, sign([]byte("other"), payload))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.VerifyWebhook([]byte(`{"action":"deleted"}`), sign([]byte("gh-secret"), payload))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGitHub_VerifyWebhook_NoSecret(t *testing.T) {
	g, err := NewGitHub(GitHubConfig{}, nil, mapping.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	ok, err := g.VerifyWebhook([]byte(`{}`), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGitHub_PostComment(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/repos/acme/widgets/issues/42/comments", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "body": body["body"]})
	}))
	defer server.Close()

	g, err := NewGitHub(GitHubConfig{APIURL: server.URL + "/", AccessToken: "gh-token"}, server.Client(), mapping.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, g.PostComment(context.Background(), "acme/widgets", 42, "hi"))
	assert.Equal(t, "hi", body["body"])
}

func TestGitHub_PostComment_BadProject(t *testing.T) {
	g, err := NewGitHub(GitHubConfig{}, nil, mapping.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	err = g.PostComment(context.Background(), "no-slash", 1, "hi")
	assert.ErrorIs(t, err, rerrors.ErrMalformedPayload)
}

func TestGitee_NotImplemented(t *testing.T) {
	g := NewGitee()
	assert.Equal(t, GiteeTokenHeader, g.WebhookHeader())
	ctx := context.Background()

	assert.ErrorIs(t, g.PostComment(ctx, "a/b", 1, "x"), rerrors.ErrNotImplemented)
	_, err := g.VerifyWebhook(nil, "")
	assert.ErrorIs(t, err, rerrors.ErrNotImplemented)
	assert.ErrorIs(t, g.StoreMapping(ctx, "a/b", 1, "x"), rerrors.ErrNotImplemented)
	_, _, err = g.GetMapping(ctx, "a/b", 1)
	assert.ErrorIs(t, err, rerrors.ErrNotImplemented)
}

func TestNew(t *testing.T) {
	store := mapping.NewMemoryStore()
	s := Settings{
		GitCode:       GitCodeConfig{APIURL: "http://gitcode.invalid", WebhookSecret: "s"},
		GitHub:        GitHubConfig{AccessToken: "gh-token", WebhookSecret: "s"},
		GitHubTimeout: time.Second,
	}

	p, err := New("gitcode", s, store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, NameGitCode, p.Name())
	assert.Equal(t, GitCodeTokenHeader, p.WebhookHeader())

	p, err = New(" GitHub ", s, store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, NameGitHub, p.Name())
	assert.Equal(t, GitHubSignatureHeader, p.WebhookHeader())

	_, err = New("gitee", s, store, zerolog.Nop())
	assert.ErrorIs(t, err, rerrors.ErrNotImplemented)

	_, err = New("bitbucket", s, store, zerolog.Nop())
	assert.ErrorIs(t, err, rerrors.ErrConfig)
}

func TestNew_GitHubSharesStore(t *testing.T) {
	store := mapping.NewMemoryStore()
	p, err := New(NameGitHub, Settings{}, store, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.StoreMapping(ctx, "acme/widgets", 7, "acme--widgets-7"))
	name, ok, err := store.Get(ctx, "acme/widgets", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "acme--widgets-7", name)
}
