package browser

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostPort(t *testing.T) {
	host, port, err := parseHostPort("ws://127.0.0.1:54231/devtools/browser/abc-123")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, "54231", port)
}

func TestParseHostPortRejectsMalformed(t *testing.T) {
	_, _, err := parseHostPort("ws://not-a-valid-authority")
	assert.Error(t, err)
}

func TestScanForDevtoolsURLFindsAnnouncement(t *testing.T) {
	r := strings.NewReader(strings.Join([]string{
		"[1234:5678:0101/120000.123456:INFO:CONSOLE]",
		"DevTools listening on ws://127.0.0.1:54231/devtools/browser/abc-123",
		"some trailing noise",
	}, "\n"))

	ch := make(chan string, 1)
	scanForDevtoolsURL(r, ch)

	select {
	case url := <-ch:
		assert.Equal(t, "ws://127.0.0.1:54231/devtools/browser/abc-123", url)
	default:
		t.Fatal("expected a devtools URL on the channel")
	}
}

func TestScanForDevtoolsURLNoAnnouncement(t *testing.T) {
	r := strings.NewReader("nothing interesting here\nor here\n")
	ch := make(chan string, 1)
	scanForDevtoolsURL(r, ch)

	select {
	case url := <-ch:
		t.Fatalf("expected no devtools URL, got %q", url)
	default:
	}
}

func TestFindChromeHonorsCHROMEBINWhenPresent(t *testing.T) {
	tmp := t.TempDir() + "/fake-chrome"
	require.NoError(t, writeExecutable(tmp))
	t.Setenv("CHROME_BIN", tmp)

	bin, err := findChrome()
	require.NoError(t, err)
	assert.Equal(t, tmp, bin)
}

func writeExecutable(path string) error {
	return os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755)
}
