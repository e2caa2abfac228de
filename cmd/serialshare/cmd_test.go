package main

import (
	"bytes"
	"testing"

	"github.com/Station-Manager/serialshare"
	"github.com/Station-Manager/serialshare/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	prev := appCfg
	appCfg = cfg
	t.Cleanup(func() { appCfg = prev })
}

func TestParsePairID(t *testing.T) {
	id, err := parsePairID("12")
	require.NoError(t, err)
	assert.Equal(t, uint32(12), id)

	for _, bad := range []string{"", "-1", "x", "4294967296"} {
		_, err := parsePairID(bad)
		assert.Error(t, err, bad)
	}
}

func TestSessionConfigUsesConfiguredLine(t *testing.T) {
	loadDefaults(t)
	cmd := &cobra.Command{Use: "test"}
	addLineFlags(cmd)

	cfg, err := sessionConfig(cmd, "COM3")
	require.NoError(t, err)
	assert.Equal(t, serialshare.DefaultSessionConfig("COM3").BaudRate, cfg.BaudRate)
	assert.Equal(t, serialshare.ParityNone, cfg.Parity)
}

func TestSessionConfigFlagOverrides(t *testing.T) {
	loadDefaults(t)
	cmd := &cobra.Command{Use: "test"}
	addLineFlags(cmd)
	require.NoError(t, cmd.Flags().Set("baud", "9600"))
	require.NoError(t, cmd.Flags().Set("parity", "even"))
	require.NoError(t, cmd.Flags().Set("stop-bits", "2"))

	cfg, err := sessionConfig(cmd, "COM3")
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, serialshare.ParityEven, cfg.Parity)
	assert.Equal(t, serialshare.StopBits2, cfg.StopBits)
}

func TestSessionConfigRejectsBadFlag(t *testing.T) {
	loadDefaults(t)
	cmd := &cobra.Command{Use: "test"}
	addLineFlags(cmd)
	require.NoError(t, cmd.Flags().Set("baud", "12345"))

	_, err := sessionConfig(cmd, "COM3")
	assert.Error(t, err)
}

func TestPrintIncoming(t *testing.T) {
	ch := make(chan []byte, 2)
	ch <- []byte("ab")
	ch <- []byte{0x01, 0xff}
	close(ch)

	var buf bytes.Buffer
	printIncoming(&buf, ch, true)
	assert.Equal(t, "6162\n01ff\n", buf.String())
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "\r\n", unescape(`\r\n`))
	assert.Equal(t, ";", unescape(";"))
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"ports"}, {"monitor"}, {"share"}, {"pairs", "list"}, {"pairs", "remove-all"},
		{"admin-service"}, {"admin-shutdown"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
