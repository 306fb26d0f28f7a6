package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yeectl/config"
	"yeectl/message"
	"yeectl/server"
)

func startEmulator(t *testing.T) (*server.Server, string, string) {
	t.Helper()
	t.Setenv("YEELIGHT_ADDR", "")
	t.Setenv("YEELIGHT_PORT", "")

	svr := server.NewServer()
	require.NoError(t, svr.Start("tcp", "127.0.0.1:0"))
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	addr := svr.Addr().(*net.TCPAddr)
	return svr, addr.IP.String(), strconv.Itoa(addr.Port)
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestToggleAndGet(t *testing.T) {
	_, host, port := startEmulator(t)

	code, out, errOut := runCLI(host, "-p", port, "toggle")
	require.Equal(t, 0, code, errOut)
	assert.Empty(t, out, `"ok" is not printed`)

	code, out, errOut = runCLI(host, "-p", port, "get", "power", "bright")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "on\n100\n", out)
}

func TestAddressAfterFlags(t *testing.T) {
	_, host, port := startEmulator(t)

	code, out, errOut := runCLI("-p", port, "-t", "2s", host, "get", "power")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "off\n", out)
}

func TestAddressFromEnvironment(t *testing.T) {
	_, host, port := startEmulator(t)
	t.Setenv("YEELIGHT_ADDR", host)
	t.Setenv("YEELIGHT_PORT", port)

	code, out, errOut := runCLI("get", "power")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "off\n", out)
}

func TestSetCommands(t *testing.T) {
	svr, host, port := startEmulator(t)

	for _, args := range [][]string{
		{"set", "rgb", "#00ff00", "-e", "sudden"},
		{"set", "bright", "30", "--bg", "-d", "1000"},
		{"set", "name", "desk"},
		{"on", "-m", "ct"},
	} {
		code, _, errOut := runCLI(append([]string{host, "-p", port}, args...)...)
		require.Equal(t, 0, code, "%v: %s", args, errOut)
	}

	props := svr.Device().Props()
	assert.Equal(t, "65280", props["rgb"])
	assert.Equal(t, "30", props["bg_bright"])
	assert.Equal(t, "desk", props["name"])
	assert.Equal(t, "on", props["power"])
	assert.Equal(t, "2", props["color_mode"])
}

func TestAdjustPercentNegative(t *testing.T) {
	svr, host, port := startEmulator(t)

	code, _, errOut := runCLI(host, "-p", port, "adjust-percent", "bright", "-20", "--bg")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "80", svr.Device().Props()["bg_bright"])
}

func TestFlowAndTimer(t *testing.T) {
	svr, host, port := startEmulator(t)

	code, _, errOut := runCLI(host, "-p", port, "flow", "1000,2,2700,100,500,1,255,10", "3", "stay")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "1", svr.Device().Props()["flowing"])

	code, _, errOut = runCLI(host, "-p", port, "timer", "10")
	require.Equal(t, 0, code, errOut)
	code, out, errOut := runCLI(host, "-p", port, "timer-get")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "{\"type\":0,\"delay\":10,\"mix\":0}\n", out)
}

func TestBulbErrorExitCode(t *testing.T) {
	svr, host, port := startEmulator(t)
	svr.Handle("toggle", func([]any) (message.Result, *message.ErrorObject) {
		return nil, &message.ErrorObject{Code: 3, Message: "busy"}
	})

	code, out, errOut := runCLI(host, "-p", port, "toggle")
	assert.Equal(t, 3, code)
	assert.Empty(t, out)
	assert.Equal(t, "Error (code 3): busy\n", errOut)
}

func TestInvalidArgumentExitsOne(t *testing.T) {
	_, host, port := startEmulator(t)

	code, _, errOut := runCLI(host, "-p", port, "set", "bright", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid argument")

	code, _, errOut = runCLI(host, "-p", port, "get", "volume")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown property")
}

func TestMissingAddress(t *testing.T) {
	t.Setenv("YEELIGHT_ADDR", "")
	code, _, errOut := runCLI("toggle")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no bulb given")
}

func TestBulbFromConfigRegistry(t *testing.T) {
	_, host, port := startEmulator(t)
	path := filepath.Join(t.TempDir(), "yeectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry:\n  bulbs:\n    desk: "+host+":"+port+"\n"), 0o600))

	code, out, errOut := runCLI("--config", path, "--bulb", "desk", "get", "power")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "off\n", out)

	code, out, errOut = runCLI("--config", path, "registry", "ls")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "desk")
	assert.Contains(t, out, host+":"+port)

	code, _, errOut = runCLI("--config", path, "registry", "add", "bed", "10.0.0.1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no etcd endpoints")
}

type scriptedLines struct {
	lines []string
}

func (s *scriptedLines) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func TestShellSharesConnection(t *testing.T) {
	svr, host, port := startEmulator(t)

	cfg := config.Default()
	cfg.Bulb.Address = host + ":" + port

	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr, cfg: cfg, logger: zap.NewNop()}

	lines := &scriptedLines{lines: []string{"toggle", "", "get power", "set bright 0", "exit", "toggle"}}
	require.NoError(t, a.shell(context.Background(), lines, &stdout, &stderr))

	assert.Contains(t, stdout.String(), "connected to")
	assert.True(t, strings.HasSuffix(stdout.String(), "on\n"), stdout.String())
	assert.Contains(t, stderr.String(), "invalid argument")
	assert.Equal(t, "on", svr.Device().Props()["power"], "lines after exit are not run")
	assert.Equal(t, []string{"toggle"}, lines.lines)
}

func TestPositionalAddress(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().Uint16P("port", "p", 55443, "")
	root.PersistentFlags().String("addr", "", "")
	root.AddCommand(&cobra.Command{Use: "toggle"}, &cobra.Command{Use: "registry", Aliases: []string{"reg"}})

	var addr string
	assert.Equal(t, []string{"toggle"}, positionalAddress(root, []string{"10.0.0.2", "toggle"}, &addr))
	assert.Equal(t, "10.0.0.2", addr)

	addr = ""
	assert.Equal(t, []string{"-p", "1234", "toggle"}, positionalAddress(root, []string{"-p", "1234", "10.0.0.3", "toggle"}, &addr))
	assert.Equal(t, "10.0.0.3", addr)

	addr = ""
	assert.Equal(t, []string{"--port=1234", "toggle"}, positionalAddress(root, []string{"--port=1234", "10.0.0.4", "toggle"}, &addr))
	assert.Equal(t, "10.0.0.4", addr)

	addr = ""
	assert.Equal(t, []string{"reg", "ls"}, positionalAddress(root, []string{"reg", "ls"}, &addr))
	assert.Equal(t, []string{"--addr", "x", "toggle"}, positionalAddress(root, []string{"--addr", "x", "toggle"}, &addr))
	assert.Empty(t, addr)
}

func TestReport(t *testing.T) {
	var stderr bytes.Buffer
	a := &app{stderr: &stderr}

	assert.Equal(t, 0, a.report(nil))
	assert.Equal(t, -1, a.report(&message.ProtocolError{Code: -1, Message: "method not supported"}))
	assert.Equal(t, 1, a.report(errors.New("boom")))
	assert.Equal(t, "Error (code -1): method not supported\nError: boom\n", stderr.String())
}
