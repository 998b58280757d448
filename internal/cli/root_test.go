package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"list", "create", "status", "resync", "remote", "gateways"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "user", "verbose", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestRootCommandRejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "-u", "u1", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCommandsRequireUser(t *testing.T) {
	for _, args := range [][]string{
		{"list"},
		{"status", "o-1", "completed"},
		{"resync"},
		{"remote"},
	} {
		t.Run(args[0], func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "--user is required")
		})
	}
}

func TestCreateRequiresItem(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-u", "u1", "create"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestParseItems(t *testing.T) {
	lines, err := parseItems([]string{"1:Lamp:10000:2", "7:Bulb:250:4"})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].Product.ID)
	assert.Equal(t, "Lamp", lines[0].Product.Name)
	assert.Equal(t, int64(10000), lines[0].Product.Price)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 4, lines[1].Quantity)

	tests := []struct {
		spec string
		want string
	}{
		{"1:Lamp:100", "want productId:name:price:quantity"},
		{"x:Lamp:100:1", "invalid product id"},
		{"1:Lamp:cheap:1", "invalid price"},
		{"1:Lamp:100:many", "invalid quantity"},
	}
	for _, tt := range tests {
		_, err := parseItems([]string{tt.spec})
		require.Error(t, err, tt.spec)
		assert.Contains(t, err.Error(), tt.want)
	}
}

// writeConfig points the CLI at a pebble directory under t.TempDir so state
// survives between command runs. extra is appended as more YAML sections.
func writeConfig(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orderctl.yaml")
	body := fmt.Sprintf("storage:\n  backend: pebble\n  path: %s\n", filepath.Join(dir, "orders"))
	if len(extra) == 0 {
		body += "mirror:\n  enabled: false\n"
	}
	for _, e := range extra {
		body += e
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const unreachableMirror = `mirror:
  enabled: true
  backend: mysql
  mysql:
    host: 127.0.0.1
    port: 1
    username: storefront
    database: storefront
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestOrderLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "-c", cfg, "-u", "u1", "--format", "json",
		"create", "--id", "o-1", "--item", "1:Lamp:10000:2", "--item", "7:Bulb:250:4")
	require.NoError(t, err)

	var created models.Order
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "o-1", created.ID)
	assert.Equal(t, "u1", created.UserID)
	assert.Equal(t, int64(21000), created.Total)
	assert.Equal(t, models.StatusPending, created.Status)

	_, err = run(t, "-c", cfg, "-u", "u1", "create", "--id", "o-2", "--item", "3:Desk:5000:1")
	require.NoError(t, err)

	out, err = run(t, "-c", cfg, "-u", "u1", "--format", "json", "list")
	require.NoError(t, err)
	var listed []models.Order
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "o-2", listed[0].ID)
	assert.Equal(t, "o-1", listed[1].ID)

	out, err = run(t, "-c", cfg, "-u", "u1", "status", "o-1", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "o-1 -> completed")

	out, err = run(t, "-c", cfg, "-u", "u1", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2 orders, 1 pending")

	// Other users see nothing.
	out, err = run(t, "-c", cfg, "-u", "u2", "--format", "json", "list")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Empty(t, listed)
}

func TestCreateRejectsLongID(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "-c", cfg, "-u", "u1", "create", "--id", strings.Repeat("x", 37), "--item", "1:Lamp:100:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longer than 36")
}

func TestStatusRejectsUnknownStatus(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "-c", cfg, "-u", "u1", "status", "o-1", "shipped")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid status "shipped"`)
}

func TestMirrorCommandsWithoutMirror(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "-c", cfg, "-u", "u1", "resync")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrMirrorDisabled)

	_, err = run(t, "-c", cfg, "-u", "u1", "remote")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrMirrorDisabled)
}

func TestCreateWithUnreachableMirror(t *testing.T) {
	cfg := writeConfig(t, unreachableMirror)

	out, err := run(t, "-c", cfg, "-u", "u1", "--format", "json",
		"create", "--id", "o-1", "--item", "1:Lamp:10000:2")
	require.NoError(t, err)
	var created models.Order
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "o-1", created.ID)
	assert.Equal(t, models.StatusPending, created.Status)

	out, err = run(t, "-c", cfg, "-u", "u1", "--format", "json", "list")
	require.NoError(t, err)
	var listed []models.Order
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "o-1", listed[0].ID)
	assert.Equal(t, models.StatusPending, listed[0].Status)

	// Commands that exist to talk to the mirror still fail.
	_, err = run(t, "-c", cfg, "-u", "u1", "resync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect remote mirror")
}
