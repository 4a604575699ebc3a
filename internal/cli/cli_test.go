package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophpair/internal/app"
	"github.com/dmitrijs2005/gophpair/internal/config"
	"github.com/dmitrijs2005/gophpair/internal/cryptox"
	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/store"
	"github.com/dmitrijs2005/gophpair/internal/transport/memlink"
)

type memLink struct {
	*memlink.Device
}

func (memLink) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// syncBuffer is a bytes.Buffer safe for a command writing while the test
// reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorePath = filepath.Join(t.TempDir(), "pair.db")
	cfg.StorePassphrase = "pass"
	cfg.PairingTimeout = 5 * time.Second
	cfg.LogLevel = "error"
	return cfg
}

func TestStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	var out bytes.Buffer
	c := New(cfg, &out, &bytes.Buffer{})
	require.NoError(t, c.Run(ctx, []string{"status"}))
	assert.Equal(t, "no session\n", out.String())

	st, err := store.Open(ctx, cfg.StorePath, []byte(cfg.StorePassphrase))
	require.NoError(t, err)
	kp, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, &models.MySessionData{
		SessionID:  "0d4c6f0e-1111-4222-8333-444455556666",
		PrivateKey: kp.PrivateKey,
		PublicKey:  kp.PublicKey,
	}))
	require.NoError(t, st.Close())

	out.Reset()
	require.NoError(t, c.Run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), `"is_ready": "no"`)
	assert.Contains(t, out.String(), "link: ploc://session/0d4c6f0e-1111-4222-8333-444455556666")

	out.Reset()
	require.NoError(t, c.Run(ctx, []string{"delete"}))
	assert.Equal(t, "session deleted\n", out.String())

	out.Reset()
	require.NoError(t, c.Run(ctx, []string{"status"}))
	assert.Equal(t, "no session\n", out.String())
}

func TestHostJoin_RelaysTokens(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m := memlink.NewMedium(logging.Discard())

	hostOut, joinOut := &syncBuffer{}, &syncBuffer{}
	host := New(testConfig(t), hostOut, &bytes.Buffer{}, app.WithLink(memLink{m.Attach(ctx, "a")}))
	joiner := New(testConfig(t), joinOut, &bytes.Buffer{}, app.WithLink(memLink{m.Attach(ctx, "b")}))

	hostErr := make(chan error, 1)
	go func() { hostErr <- host.Run(ctx, []string{"host", "--token", "cafe"}) }()

	linkRe := regexp.MustCompile(`link:\s+(\S+)`)
	var link string
	require.Eventually(t, func() bool {
		if m := linkRe.FindStringSubmatch(hostOut.String()); m != nil {
			link = m[1]
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, joiner.Run(ctx, []string{"join", link, "--token", "beef"}))
	require.NoError(t, <-hostErr)

	assert.Contains(t, hostOut.String(), "paired with b")
	assert.Contains(t, hostOut.String(), "peer token: beef")
	assert.Contains(t, joinOut.String(), "paired with a")
	assert.Contains(t, joinOut.String(), "peer token: cafe")
}

func TestJoin_RejectsMalformedLink(t *testing.T) {
	ctx := context.Background()
	m := memlink.NewMedium(logging.Discard())
	c := New(testConfig(t), &bytes.Buffer{}, &bytes.Buffer{}, app.WithLink(memLink{m.Attach(ctx, "b")}))

	err := c.Run(ctx, []string{"join", "ploc://session/abc"})
	require.ErrorIs(t, err, models.ErrNotAPairingLink)
}

func TestHost_RejectsBadToken(t *testing.T) {
	c := New(testConfig(t), &bytes.Buffer{}, &bytes.Buffer{})
	err := c.Run(context.Background(), []string{"host", "--token", "zz"})
	require.ErrorContains(t, err, "token must be hex")
}

func TestExecute_StripsConfigFlags(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "pair.db")

	err := Execute(context.Background(), []string{"-d", path, "-p", "pass", "-log", "error", "status"}, &out, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "no session\n", out.String())
	assert.FileExists(t, path)
}

func TestGetPassphrase(t *testing.T) {
	origRead, origTerm, origFd := readPassword, isTerminal, stdinFd
	t.Cleanup(func() { readPassword, isTerminal, stdinFd = origRead, origTerm, origFd })
	stdinFd = func() int { return 0 }

	got, err := getPassphrase("configured", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []byte("configured"), got)

	isTerminal = func(int) bool { return false }
	_, err = getPassphrase("", &bytes.Buffer{})
	require.ErrorIs(t, err, errNoPassphrase)

	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("typed"), nil }
	var prompt bytes.Buffer
	got, err = getPassphrase("", &prompt)
	require.NoError(t, err)
	assert.Equal(t, []byte("typed"), got)
	assert.Equal(t, "Enter store passphrase: \n", prompt.String())

	readPassword = func(int) ([]byte, error) { return nil, nil }
	_, err = getPassphrase("", &bytes.Buffer{})
	require.ErrorIs(t, err, errNoPassphrase)

	boom := errors.New("tty gone")
	readPassword = func(int) ([]byte, error) { return nil, boom }
	_, err = getPassphrase("", &bytes.Buffer{})
	require.ErrorIs(t, err, boom)
}

func TestJoin_ReadsLinkFromInput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m := memlink.NewMedium(logging.Discard())

	pr, pw := io.Pipe()
	orig := linkInput
	linkInput = pr
	t.Cleanup(func() {
		linkInput = orig
		_ = pw.Close()
	})

	hostOut, joinOut, prompt := &syncBuffer{}, &syncBuffer{}, &syncBuffer{}
	host := New(testConfig(t), hostOut, &bytes.Buffer{}, app.WithLink(memLink{m.Attach(ctx, "a")}))
	joiner := New(testConfig(t), joinOut, prompt, app.WithLink(memLink{m.Attach(ctx, "b")}))

	joinErr := make(chan error, 1)
	go func() { joinErr <- joiner.Run(ctx, []string{"join"}) }()
	require.Eventually(t, func() bool { return strings.Contains(prompt.String(), "pairing link: ") },
		5*time.Second, 10*time.Millisecond)

	hostErr := make(chan error, 1)
	go func() { hostErr <- host.Run(ctx, []string{"host"}) }()

	linkRe := regexp.MustCompile(`link:\s+(\S+)`)
	var link string
	require.Eventually(t, func() bool {
		if m := linkRe.FindStringSubmatch(hostOut.String()); m != nil {
			link = m[1]
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	_, err := io.WriteString(pw, link+"\n")
	require.NoError(t, err)

	require.NoError(t, <-joinErr)
	require.NoError(t, <-hostErr)
	assert.Contains(t, joinOut.String(), "paired with a")
	assert.Contains(t, hostOut.String(), "paired with b")
}

func TestReadLink(t *testing.T) {
	link, err := readLink(context.Background(), strings.NewReader("  ploc://pw/abc  \nrest\n"))
	require.NoError(t, err)
	assert.Equal(t, "ploc://pw/abc", link)

	_, err = readLink(context.Background(), strings.NewReader(""))
	require.ErrorIs(t, err, errNoLink)

	_, err = readLink(context.Background(), strings.NewReader("\n"))
	require.ErrorIs(t, err, errNoLink)

	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = readLink(ctx, pr)
	require.ErrorIs(t, err, context.Canceled)
}
