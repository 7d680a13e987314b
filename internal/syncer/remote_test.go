package syncer

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/authority"
	"ledger/internal/core"
	"ledger/internal/log"
)

const secret = "0123456789abcdef0123456789abcdef"

func newAuthorityServer(t *testing.T) (*httptest.Server, *authority.Authenticator) {
	t.Helper()
	auth := authority.NewAuthenticator(secret)
	svc := authority.NewService(authority.NewMemoryRepository())
	srv := httptest.NewServer(authority.NewRouter(svc, auth, log.Discard(), authority.RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv, auth
}

func TestHTTPRemote_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, auth := newAuthorityServer(t)
	token, err := auth.IssueToken(namespace, "laptop", time.Hour)
	require.NoError(t, err)

	remote := NewHTTPRemote(srv.URL+"/", token, 5*time.Second)
	laptop, laptopSync := newDevice(t, remote)
	phone, phoneSync := newDevice(t, remote)

	require.NoError(t, laptop.Set(ctx, core.RecordTransaction, idA, core.Data{"name": "Spesa", "amount": "12.50"}, false))
	_, err = laptopSync.Sync(ctx, namespace)
	require.NoError(t, err)
	_, err = phoneSync.Sync(ctx, namespace)
	require.NoError(t, err)

	got, err := phone.Get(core.RecordTransaction, idA)
	require.NoError(t, err)
	assert.Equal(t, "12.50", got["amount"])
}

func TestHTTPRemote_Errors(t *testing.T) {
	ctx := context.Background()
	srv, auth := newAuthorityServer(t)
	other, err := auth.IssueToken("neighbours", "laptop", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "no token", token: "", want: "authority returned 401: missing token"},
		{name: "bad token", token: "garbage", want: "authority returned 401: invalid token"},
		{name: "other namespace", token: other, want: "authority returned 403: namespace not permitted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := newDevice(t, NewHTTPRemote(srv.URL, tt.token, 5*time.Second))
			require.NoError(t, s.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa"}, false))

			_, err := e.Sync(ctx, namespace)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrSync)
			assert.Contains(t, err.Error(), tt.want)
			assert.Len(t, unsynced(t, s), 1)
		})
	}
}

func TestHTTPRemote_Unreachable(t *testing.T) {
	srv, _ := newAuthorityServer(t)
	url := srv.URL
	srv.Close()

	_, e := newDevice(t, NewHTTPRemote(url, "token", time.Second))
	_, err := e.Sync(context.Background(), namespace)
	assert.ErrorIs(t, err, core.ErrSync)
}
