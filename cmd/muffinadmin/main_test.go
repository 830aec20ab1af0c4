package main

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/cesarabad/muffinmanager/internal/fakeapi"
	"github.com/cesarabad/muffinmanager/internal/fakebroker"
	"github.com/cesarabad/muffinmanager/pkg/models"
	"github.com/cesarabad/muffinmanager/pkg/resources"
)

// syncBuffer lets the watch test read output while the command writes it.
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

func backend(t *testing.T, opts ...fakeapi.Option) *fakeapi.Server {
	t.Helper()
	opts = append([]fakeapi.Option{
		fakeapi.WithResource(resources.BoxResource, false),
		fakeapi.WithResource(resources.BrandResource, true),
		fakeapi.WithKeyedResource(resources.UserResource, false, "dni"),
		fakeapi.RequireToken("opaque-token"),
	}, opts...)
	srv := fakeapi.New(opts...).Start()
	t.Cleanup(srv.Close)

	t.Setenv("MM_API_URL", srv.URL())
	t.Setenv("MM_TOKEN", "opaque-token")
	t.Setenv("MM_LOG_FORMAT", "text")
	t.Setenv("MM_LOG_LEVEL", "debug")
	t.Setenv("MM_LOCALE", "en")
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	err := runCLIWith(context.Background(), out, args...)
	return out.String(), err
}

func runCLIWith(ctx context.Context, out io.Writer, args ...string) error {
	root := rootCommand()
	root.Writer = out
	root.ErrWriter = io.Discard
	return root.Run(ctx, append([]string{"muffinadmin"}, args...))
}

func TestListBoxes(t *testing.T) {
	srv := backend(t)
	srv.Seed(resources.BoxResource, fakeapi.Record{"reference": "B001", "description": "Standard pallet box"})

	out, err := runCLI(t, "list", "box")
	require.NoError(t, err)
	assert.Contains(t, out, "Reference")
	assert.Contains(t, out, "B001")
	assert.Contains(t, out, "Standard pallet box")
	assert.Equal(t, []string{"Bearer opaque-token"}, srv.Authorizations())
}

func TestListEmptyAndJSON(t *testing.T) {
	srv := backend(t)

	out, err := runCLI(t, "list", "box")
	require.NoError(t, err)
	assert.Contains(t, out, "No items")

	srv.Seed(resources.BrandResource, fakeapi.Record{"reference": "ACME", "name": "Acme Corp", "obsolete": true})
	out, err = runCLI(t, "list", "--obsolete", "--json", "brand")
	require.NoError(t, err)
	assert.Contains(t, out, `"field.reference": "ACME"`)
}

func TestJSONFlagUsage(t *testing.T) {
	seen := 0
	for _, cmd := range rootCommand().Commands {
		for _, fl := range cmd.Flags {
			b, ok := fl.(*cli.BoolFlag)
			if !ok || b.Name != "json" {
				continue
			}
			assert.Contains(t, b.Usage, "keyed by column label", cmd.Name)
			assert.NotContains(t, b.Usage, "raw", cmd.Name)
			seen++
		}
	}
	assert.Equal(t, 3, seen)
}

func TestListUnknownResource(t *testing.T) {
	backend(t)
	_, err := runCLI(t, "list", "pallet")
	assert.ErrorContains(t, err, "unknown resource")

	_, err = runCLI(t, "list")
	assert.ErrorContains(t, err, "missing resource")
}

func TestGetAndDelete(t *testing.T) {
	srv := backend(t)
	srv.Seed(resources.BoxResource, fakeapi.Record{"reference": "B001", "description": "Standard pallet box"})

	out, err := runCLI(t, "get", "box", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "B001")

	_, err = runCLI(t, "get", "box", "x")
	assert.ErrorContains(t, err, "invalid id")

	_, err = runCLI(t, "get", "box", "42")
	assert.ErrorContains(t, err, "Not found")

	out, err = runCLI(t, "delete", "box", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Box deleted")
	assert.Empty(t, srv.Records(resources.BoxResource))

	_, err = runCLI(t, "delete", "--reference", "B001", "box")
	assert.ErrorContains(t, err, "not versioned")
}

func TestObsoleteAndDeleteReference(t *testing.T) {
	srv := backend(t)
	srv.Seed(resources.BrandResource, fakeapi.Record{"reference": "ACME", "name": "Acme Corp"})

	out, err := runCLI(t, "obsolete", "brand", "ACME")
	require.NoError(t, err)
	assert.Contains(t, out, "Brand marked obsolete")
	recs := srv.Records(resources.BrandResource)
	require.Len(t, recs, 1)
	assert.Equal(t, true, recs[0]["obsolete"])

	out, err = runCLI(t, "obsolete", "--restore", "brand", "ACME")
	require.NoError(t, err)
	assert.Contains(t, out, "Brand is active again")

	_, err = runCLI(t, "obsolete", "box", "B001")
	assert.ErrorContains(t, err, "not versioned")

	_, err = runCLI(t, "delete", "--reference", "ACME", "brand")
	require.NoError(t, err)
	assert.Empty(t, srv.Records(resources.BrandResource))
}

func TestEffective(t *testing.T) {
	srv := backend(t)
	id := srv.Seed(resources.UserResource, fakeapi.Record{
		"dni":         "12345678Z",
		"name":        "Ana",
		"permissions": []any{map[string]any{"id": 2, "name": string(models.PermissionManageStock)}},
		"groups": []any{map[string]any{
			"id":          10,
			"name":        "Ops",
			"permissions": []any{map[string]any{"id": 1, "name": string(models.PermissionGetStock)}},
		}},
	})

	out, err := runCLI(t, "effective", "--json", strconv.FormatInt(id, 10))
	require.NoError(t, err)
	assert.Contains(t, out, `"permission": "get_stock"`)
	assert.Contains(t, out, `"source": "group"`)
	assert.Contains(t, out, `"permission": "manage_stock"`)
	assert.Contains(t, out, `"source": "direct"`)
}

func TestPermissionSources(t *testing.T) {
	get := models.PermissionEntity{ID: 1, Name: models.PermissionGetStock}
	manage := models.PermissionEntity{ID: 2, Name: models.PermissionManageStock}
	u := models.UserDetailed{
		Permissions: []models.PermissionEntity{manage, get},
		Groups:      []models.GroupEntity{{Name: "Ops", Permissions: []models.PermissionEntity{get}}},
	}
	assert.Equal(t, [][]string{
		{"get_stock", "direct+group"},
		{"manage_stock", "direct"},
	}, permissionSources(u))
}

func TestMissingConfig(t *testing.T) {
	t.Setenv("MM_API_URL", "")
	_, err := runCLI(t, "list", "box")
	assert.ErrorContains(t, err, "MM_API_URL")
}

func TestWatch(t *testing.T) {
	backend(t)
	broker := fakebroker.New()
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })
	t.Setenv("MM_LIVE_URL", broker.URL())
	t.Setenv("MM_RECONNECT_INTERVAL", "50ms")

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runCLIWith(context.Background(), out, "watch", "--count", "2", "box") }()

	require.Eventually(t, func() bool { return broker.SubscriberCount("/topic/box") == 1 }, 3*time.Second, 10*time.Millisecond)
	broker.Publish("/topic/box", `{"id":1}`)
	broker.Publish("/topic/box", "deleted")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not exit")
	}
	assert.Equal(t, "/topic/box\t{\"id\":1}\n/topic/box\tdeleted\n", out.String())
}

func TestWatchUserTopic(t *testing.T) {
	backend(t)
	broker := fakebroker.New()
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })
	t.Setenv("MM_LIVE_URL", broker.URL())

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runCLIWith(context.Background(), out, "watch", "--count", "1", "--user", "7") }()

	require.Eventually(t, func() bool { return broker.SubscriberCount("/topic/user/7") == 1 }, 3*time.Second, 10*time.Millisecond)
	broker.Publish("/topic/user/7", "logout")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not exit")
	}
	assert.Equal(t, "/topic/user/7\tlogout\n", out.String())
}

func TestResources(t *testing.T) {
	backend(t)
	out, err := runCLI(t, "resources")
	require.NoError(t, err)
	assert.Contains(t, out, "product-item")
	assert.Contains(t, out, "/topic/muffin-shape")
}
