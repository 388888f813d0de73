package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/snapdrop/internal/hostapi/hostapitest"
)

type cliEnv struct {
	t    *testing.T
	host *hostapitest.Server
	cfg  string
	dir  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	host := hostapitest.NewServer(t)
	host.AddUser("alice", "secret123")

	t.Setenv("SNAPDROP_SESSION_PATH", filepath.Join(dir, "session.json"))
	t.Setenv("SNAPDROP_UPLOAD_PAUSE", "0s")
	t.Setenv("SNAPDROP_SUBMIT_COOLDOWN", "0s")
	t.Setenv("SNAPDROP_BACKEND", "http")
	return &cliEnv{
		t:    t,
		host: host,
		cfg:  filepath.Join(dir, "missing.toml"),
		dir:  dir,
	}
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(append([]string{"--config", e.cfg, "--api-url", e.host.URL + "/", "--log-level", "error"}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) writeFile(name string, data []byte) string {
	e.t.Helper()
	p := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(p, data, 0o644))
	return p
}

func (e *cliEnv) login() {
	e.t.Helper()
	_, err := e.run("secret123\n", "login", "-u", "alice")
	require.NoError(e.t, err)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	out, err = env.run("secret123\n", "login", "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful")

	out, err = env.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	out, err = env.run("", "whoami", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "alice (saved, expires")

	_, err = env.run("", "logout")
	require.NoError(t, err)

	out, err = env.run("", "whoami", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestLoginWrongPassword(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("nope\n", "login", "-u", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username or password")
}

func TestGuestLogin(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("", "guest")
	require.NoError(t, err)

	out, err := env.run("", "whoami")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Guest-"))
	assert.Contains(t, out, "(guest)")
}

func TestUploadRequiresSignIn(t *testing.T) {
	env := newCLIEnv(t)
	p := env.writeFile("a.png", pngHeader)

	_, err := env.run("", "upload", "--yes", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
	assert.Empty(t, env.host.Uploads())
}

func TestUploadSingleFileShowsDetails(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	p := env.writeFile("cat.png", pngHeader)

	out, err := env.run("", "upload", "--yes", p)
	require.NoError(t, err)
	assert.Contains(t, out, "cat.png: Completed")
	assert.Contains(t, out, "1/1 files uploaded (0 failed)")
	assert.Contains(t, out, "url:")
	assert.Len(t, env.host.Uploads(), 1)
}

func TestUploadSkipsInvalidAndReportsFailures(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	env.host.FailUploads("broken.png", 500)
	good := env.writeFile("good.png", pngHeader)
	broken := env.writeFile("broken.png", pngHeader)
	notes := env.writeFile("notes.txt", []byte("hello"))

	out, err := env.run("", "upload", "--yes", good, broken, notes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 upload(s) failed")
	assert.Contains(t, out, `File "notes.txt" has invalid type. Skipped.`)
	assert.Contains(t, out, "good.png: Completed")
	assert.Contains(t, out, "broken.png: Failed - ")
	assert.Contains(t, out, "1/2 files uploaded (1 failed)")
	assert.Len(t, env.host.Uploads(), 1)
}

func TestUploadDeclined(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	p := env.writeFile("a.png", pngHeader)

	out, err := env.run("n\n", "upload", p)
	require.NoError(t, err)
	assert.Contains(t, out, "Upload 1 file(s) to")
	assert.Empty(t, env.host.Uploads())
}

func TestUploadDirectory(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	media := filepath.Join(env.dir, "media")
	require.NoError(t, os.Mkdir(media, 0o755))
	for _, name := range []string{"one.png", "two.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(media, name), pngHeader, 0o644))
	}

	out, err := env.run("", "upload", "--yes", "--dir", media)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "  2/2 files uploaded (0 failed)\n"), out)
	assert.Equal(t, 1, strings.Count(out, "  1/2 files uploaded (0 failed)\n"), out)
	assert.Equal(t, 2, strings.Count(out, "2/2 files uploaded (0 failed)"), "progress line plus summary")
	assert.Len(t, env.host.Uploads(), 2)
}

func TestUploadNeedsInput(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("", "upload")
	require.Error(t, err)
}

func TestGalleryShowDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	p := env.writeFile("cat.png", pngHeader)
	_, err := env.run("", "upload", "--yes", p)
	require.NoError(t, err)

	out, err := env.run("", "gallery")
	require.NoError(t, err)
	assert.Contains(t, out, "/uploads/")
	assert.NotContains(t, out, "No uploads yet.")

	out, err = env.run("", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, ".png")
	assert.Contains(t, out, "owner:    you")

	_, err = env.run("", "delete", "--yes", "1")
	require.NoError(t, err)

	out, err = env.run("", "gallery")
	require.NoError(t, err)
	assert.Contains(t, out, "No uploads yet.")

	_, err = env.run("", "show", "1")
	require.Error(t, err)
}

func TestShowExpired(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	p := env.writeFile("old.png", pngHeader)
	_, err := env.run("", "upload", "--yes", p)
	require.NoError(t, err)

	env.host.Expire(1)
	_, err = env.run("", "show", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestStatusAndAnnouncements(t *testing.T) {
	env := newCLIEnv(t)
	env.login()
	env.host.Announce("Maintenance on Sunday")

	out, err := env.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "All systems operational.")
	assert.Contains(t, out, "Maintenance on Sunday")

	env.host.SetStatusCode(503)
	out, err = env.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "degraded")
}

func TestAccountPasswordValidation(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	_, err := env.run("secret123\nshort\nshort\n", "account", "password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8")

	_, err = env.run("secret123\nlongenough1\nlongenough2\n", "account", "password")
	require.Error(t, err)
}

func TestAccountRename(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	_, err := env.run("", "account", "rename", "bob")
	require.NoError(t, err)

	out, err := env.run("", "whoami", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")
}

func TestHistoryRequiresDatabase(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("SNAPDROP_DATABASE_URL", "")
	_, err := env.run("", "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNAPDROP_DATABASE_URL")
}

func TestRegisterValidatesBeforeContactingHost(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("abc\nabc\n", "register", "-u", "bob", "--accept-tos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8")

	_, err = env.run("longenough\n\n", "register", "-u", "bob", "--accept-tos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fill in all fields")

	_, err = env.run("longenough\nlongenougH\n", "register", "-u", "bob", "--accept-tos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")

	out, err := env.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestRegisterTermsOfService(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("Longenough1!\nLongenough1!\nn\n", "register", "-u", "bob")
	require.ErrorIs(t, err, errTermsDeclined)
	assert.Contains(t, out, "Password strength: strong")
	assert.Contains(t, out, "Do you accept the Terms of Service? [y/N]")

	out, err = env.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	// The declined attempt left the name free.
	out, err = env.run("longenough\nlongenough\ny\n", "register", "-u", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Password strength: weak")
	assert.Contains(t, out, "Registration successful")

	out, err = env.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "bob\n", out)
}

func TestRegisterAcceptTOSFlagSkipsPrompt(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("Longenough1\nLongenough1\n", "register", "-u", "carol", "--accept-tos")
	require.NoError(t, err)
	assert.Contains(t, out, "Password strength: medium")
	assert.NotContains(t, out, "Terms of Service?")
}

func TestAccountPasswordShowsStrength(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	out, err := env.run("secret123\nNewSecret123!\nNewSecret123!\n", "account", "password")
	require.NoError(t, err)
	assert.Contains(t, out, "Password strength: strong")

	_, err = env.run("NewSecret123!\n", "login", "-u", "alice")
	require.NoError(t, err)
}

func TestAccountSessionsMarksCurrent(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	out, err := env.run("", "account", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "DEVICE")
	assert.Contains(t, out, "Unknown OS (Unknown Browser)")
	assert.Contains(t, out, "current")
	assert.Contains(t, out, "...")
}
