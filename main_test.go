package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/chat"
	"nexus/internal/nexusdb"
)

var signedUp = regexp.MustCompile(`\(([A-Z0-9]+)\)`)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("NEXUS_CONFIG", "")
	t.Setenv("NEXUS_ORIGIN", "")
	t.Setenv("NEXUS_STORAGE", "bbolt")
	t.Setenv("NEXUS_DB", filepath.Join(dir, "nexus.db"))
	t.Setenv("NEXUS_BCRYPT_COST", "4")
	t.Setenv("NEXUS_LOG_LEVEL", "error")
	t.Setenv("NEXUS_METRICS_ADDR", "")
	t.Setenv("API_KEY", "")
	t.Setenv("NEXUS_SEED_SECRET", "seed")
}

func nexus(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(t.Context(), args, &out), "nexus %v", args)
	return out.String()
}

func signup(t *testing.T, name, email string) string {
	t.Helper()
	out := nexus(t, "signup", "--name", name, "--email", email, "--password", "pw")
	m := signedUp.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

// conversation runs the two-account scenario against whatever origin the
// environment points at.
func conversation(t *testing.T) {
	alice := signup(t, "Alice", "alice@nexus.dev")
	bob := signup(t, "Bob", "bob@nexus.dev")

	assert.Contains(t, nexus(t, "whoami"), bob)
	assert.Contains(t, nexus(t, "login", "ALICE@nexus.dev", "--password", "pw"), alice)

	assert.Contains(t, nexus(t, "users", "bob"), bob)
	assert.Contains(t, nexus(t, "start", bob), "started")
	assert.Contains(t, nexus(t, "start", bob), "already open")
	assert.Contains(t, nexus(t, "send", bob, "hello", "bob"), "Sent msg-")

	chats := nexus(t, "chats")
	assert.Contains(t, chats, bob)
	assert.Contains(t, chats, "hello bob")

	var out bytes.Buffer
	err := run(t.Context(), []string{"send", "NOBODY0001", "hi"}, &out)
	assert.ErrorIs(t, err, chat.ErrNoConversation)

	nexus(t, "login", bob, "--password", "pw")
	chats = nexus(t, "chats")
	assert.Contains(t, chats, alice)
	assert.Contains(t, chats, "(1 unread)")
	shown := nexus(t, "show", alice)
	assert.Contains(t, shown, "hello bob")
	assert.NotContains(t, shown, "typing")

	nexus(t, "read", alice)
	assert.NotContains(t, nexus(t, "chats"), "unread")

	assert.Contains(t, nexus(t, "export", alice, "--markdown"), "hello bob")

	nexus(t, "login", "ARCHITECT01", "--password", "seed")
	accounts := accountLines(nexus(t, "admin", "accounts"))
	assert.Contains(t, accounts[alice], "has chats")
	assert.Contains(t, accounts[bob], "has chats")
	assert.Contains(t, accounts["ARCHITECT01"], "no chats")

	nexus(t, "logout")
	err = run(t.Context(), []string{"whoami"}, &out)
	assert.ErrorIs(t, err, nexusdb.ErrNoIdentity)
}

// accountLines indexes the admin account listing by account id.
func accountLines(out string) map[string]string {
	lines := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			lines[fields[0]] = line
		}
	}
	return lines
}

func TestLocalOrigin(t *testing.T) {
	setupEnv(t)
	conversation(t)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for i := 0; i < retries; i++ {
		resp, err := client.Get(urlStr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}

func TestRemoteOrigin(t *testing.T) {
	setupEnv(t)
	addr := freeAddr(t)
	t.Setenv("NEXUS_BRIDGE_ADDR", addr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"serve"}, &bytes.Buffer{})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("serve did not stop")
		}
	})

	waitForServer(t, fmt.Sprintf("http://%s/healthz", addr), 50)

	// Every following command attaches to the running origin.
	t.Setenv("NEXUS_ORIGIN", fmt.Sprintf("ws://%s/api/tab", addr))
	conversation(t)
}
