package hostapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/snapdrop/internal/hostapi"
	"github.com/dharsanguruparan/snapdrop/internal/hostapi/hostapitest"
	"github.com/dharsanguruparan/snapdrop/internal/model"
	"github.com/dharsanguruparan/snapdrop/internal/session"
	"github.com/dharsanguruparan/snapdrop/internal/uploadqueue"
)

func newClient(t *testing.T, host *hostapitest.Server, store session.Store) *hostapi.Client {
	t.Helper()
	client, err := hostapi.New(hostapi.Options{
		BaseURL:         host.URL + "/",
		RequestTimeout:  2 * time.Second,
		TransferTimeout: 5 * time.Second,
		Sessions:        store,
	})
	require.NoError(t, err)
	return client
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := hostapi.New(hostapi.Options{BaseURL: "localhost"})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	host := hostapitest.NewServer(t)
	client := newClient(t, host, nil)
	ctx := context.Background()

	report, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, report.Operational())

	host.SetStatusCode(503)
	report, err = client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, report.Operational())
}

func TestLoginPersistsSession(t *testing.T) {
	host := hostapitest.NewServer(t)
	host.AddUser("ada", "correct horse")
	store := session.NewMemoryStore()
	client := newClient(t, host, store)
	ctx := context.Background()

	_, err := client.Login(ctx, "ada", "wrong", false)
	var apiErr *hostapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.ErrorIs(t, err, hostapi.ErrUnauthorized)

	acct, err := client.Login(ctx, "ada", "correct horse", true)
	require.NoError(t, err)
	assert.Equal(t, "ada", acct.Username)

	saved, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "ada", saved.Username)
	assert.True(t, saved.Remember)
	require.NotEmpty(t, saved.Cookies)

	// a fresh client restores the cookies from the store
	again := newClient(t, host, store)
	status, err := again.AuthStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "ada", status.Username)
}

func TestAuthStatusSignedOutClearsSession(t *testing.T) {
	host := hostapitest.NewServer(t)
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(session.Session{Username: "ghost", Cookies: []session.Cookie{{Name: "session", Value: "stale", Path: "/"}}}))
	client := newClient(t, host, store)

	status, err := client.AuthStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
	_, err = store.Get()
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRegisterGuestAndLogout(t *testing.T) {
	host := hostapitest.NewServer(t)
	store := session.NewMemoryStore()
	client := newClient(t, host, store)
	ctx := context.Background()

	acct, err := client.Register(ctx, "grace", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "grace", acct.Username)

	_, err = client.Register(ctx, "grace", "again1234")
	assert.ErrorContains(t, err, "Username already exists")

	require.NoError(t, client.Logout(ctx))
	_, err = store.Get()
	assert.ErrorIs(t, err, session.ErrNotFound)

	guest, err := client.GuestLogin(ctx)
	require.NoError(t, err)
	assert.True(t, guest.IsGuest)
	assert.Regexp(t, `^Guest-[0-9a-f]{8}$`, guest.Username)

	saved, err := store.Get()
	require.NoError(t, err)
	assert.True(t, saved.Guest)
}

func TestRegisterValidatesLocally(t *testing.T) {
	host := hostapitest.NewServer(t)
	store := session.NewMemoryStore()
	client := newClient(t, host, store)
	ctx := context.Background()

	_, err := client.Register(ctx, "bob", "abc")
	assert.ErrorIs(t, err, hostapi.ErrPasswordTooShort)
	_, err = client.Register(ctx, "  ", "longenough")
	assert.ErrorIs(t, err, hostapi.ErrMissingFields)
	_, err = client.Register(ctx, "bob", "")
	assert.ErrorIs(t, err, hostapi.ErrMissingFields)

	_, err = store.Get()
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Nothing reached the host, so the name is still free.
	acct, err := client.Register(ctx, "bob", "longenough")
	require.NoError(t, err)
	assert.Equal(t, "bob", acct.Username)
}

func TestAnnouncementsUnauthorizedIsEmpty(t *testing.T) {
	host := hostapitest.NewServer(t)
	host.Announce("maintenance tonight")
	client := newClient(t, host, nil)
	ctx := context.Background()

	list, err := client.Announcements(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = client.GuestLogin(ctx)
	require.NoError(t, err)
	list, err = client.Announcements(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "maintenance tonight", list[0].Message)
	assert.False(t, list[0].CreatedAt.IsZero())
}

func TestUploadGalleryAndDelete(t *testing.T) {
	host := hostapitest.NewServer(t)
	client := newClient(t, host, nil)
	ctx := context.Background()
	_, err := client.GuestLogin(ctx)
	require.NoError(t, err)

	resp, err := client.Upload(ctx, model.BytesFile("cat.png", "image/png", []byte("\x89PNG fake")))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, hostapi.Identifier("1"), resp.DetailsID)
	assert.Contains(t, resp.ImageURL, "/uploads/")

	uploads := host.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "cat.png", uploads[0].Name)
	assert.Equal(t, "image/png", uploads[0].ContentType)
	assert.Equal(t, 9, uploads[0].Size)

	images, err := client.Images(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, hostapi.Identifier("1"), images[0].ID)

	details, err := client.Image(ctx, "1")
	require.NoError(t, err)
	assert.True(t, details.IsOwner)
	require.NotNil(t, details.ExpiresAt)

	require.NoError(t, client.DeleteImage(ctx, "1"))
	_, err = client.Image(ctx, "1")
	assert.ErrorIs(t, err, hostapi.ErrNotFound)
}

func TestImageExpired(t *testing.T) {
	host := hostapitest.NewServer(t)
	client := newClient(t, host, nil)
	ctx := context.Background()
	_, err := client.GuestLogin(ctx)
	require.NoError(t, err)
	_, err = client.Upload(ctx, model.BytesFile("old.gif", "image/gif", []byte("GIF89a")))
	require.NoError(t, err)

	host.Expire(1)
	_, err = client.Image(ctx, "1")
	assert.ErrorIs(t, err, hostapi.ErrExpired)
	assert.ErrorContains(t, err, "expired and has been deleted")
}

func TestUploadRequiresLogin(t *testing.T) {
	host := hostapitest.NewServer(t)
	client := newClient(t, host, nil)

	_, err := client.Upload(context.Background(), model.BytesFile("a.png", "image/png", []byte("x")))
	assert.ErrorIs(t, err, hostapi.ErrUnauthorized)
}

func TestTransferDrivesQueue(t *testing.T) {
	host := hostapitest.NewServer(t)
	host.FailUploads("broken.png", http.StatusInternalServerError)
	client := newClient(t, host, nil)
	ctx := context.Background()
	_, err := client.GuestLogin(ctx)
	require.NoError(t, err)

	ctrl := uploadqueue.New(client, nil, uploadqueue.Options{})
	_, err = ctrl.Enqueue(
		model.BytesFile("one.png", "image/png", []byte("1")),
		model.BytesFile("broken.png", "image/png", []byte("2")),
		model.BytesFile("clip.mp4", "video/mp4", []byte("3")),
	)
	require.NoError(t, err)

	res, err := ctrl.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Job.Reason, "Failed to save image metadata")
	assert.Equal(t, "1", res.FirstIdentifier)
	ctrl.Reset()
}

func TestChangePasswordValidatesLocally(t *testing.T) {
	host := hostapitest.NewServer(t)
	client := newClient(t, host, nil)
	ctx := context.Background()

	_, err := client.ChangePassword(ctx, "old", "short", "short")
	assert.ErrorIs(t, err, hostapi.ErrPasswordTooShort)
	_, err = client.ChangePassword(ctx, "old", "longenough", "different")
	assert.ErrorIs(t, err, hostapi.ErrPasswordMismatch)
}

func TestAccountManagement(t *testing.T) {
	host := hostapitest.NewServer(t)
	host.AddUser("ada", "password1")
	store := session.NewMemoryStore()
	client := newClient(t, host, store)
	ctx := context.Background()
	_, err := client.Login(ctx, "ada", "password1", false)
	require.NoError(t, err)

	logins, err := client.LoginSessions(ctx)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	status, err := client.AuthStatus(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, status.LastSeenIPHash)
	assert.Equal(t, status.LastSeenIPHash, logins[0].HashedIP)

	msg, err := client.ChangeUsername(ctx, "  lovelace ")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
	saved, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "lovelace", saved.Username)

	_, err = client.ChangePassword(ctx, "wrong", "password2", "password2")
	assert.ErrorIs(t, err, hostapi.ErrUnauthorized)
	_, err = client.ChangePassword(ctx, "password1", "password2", "password2")
	require.NoError(t, err)

	_, err = client.DeleteAccount(ctx, "password2")
	require.NoError(t, err)
	_, err = store.Get()
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestIdentifierJSON(t *testing.T) {
	var got struct {
		A hostapi.Identifier `json:"a"`
		B hostapi.Identifier `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 42, "b": "x-9"}`), &got))
	assert.Equal(t, hostapi.Identifier("42"), got.A)
	assert.Equal(t, hostapi.Identifier("x-9"), got.B)

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 42, "b": "x-9"}`, string(out))
}

func TestTimeFormats(t *testing.T) {
	var got struct {
		Naive hostapi.Time  `json:"naive"`
		Zoned hostapi.Time  `json:"zoned"`
		Null  *hostapi.Time `json:"null"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"naive":"2024-05-01T10:00:00.123456","zoned":"2024-06-01T00:00:00+00:00","null":null}`), &got))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), got.Naive.Time)
	assert.Equal(t, 6, int(got.Zoned.Month()))
	assert.Nil(t, got.Null)
}
