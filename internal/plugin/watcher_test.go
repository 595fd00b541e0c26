package plugin_test

import (
	"context"
	"testing"
	"time"

	"inkframe/internal/plugin"
)

// startWatch runs Watch in the background for the life of the test.
func startWatch(t *testing.T, r *plugin.Registry, root string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Watch(ctx, root, nil)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// pollUntil retries step until cond holds. Re-running step covers the gap
// between starting the watcher and its watches being in place.
func pollUntil(t *testing.T, step func(), cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		step()
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatchReloadsOnManifestWrite(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "clock", `{"name": "before"}`)

	r := plugin.NewRegistry(map[string]plugin.Factory{"clock": stubFactory}, nil)
	if _, err := r.LoadAll(root); err != nil {
		t.Fatal(err)
	}
	startWatch(t, r, root)

	// Editing an existing manifest is the common admin action; it must
	// reload without waiting for any periodic rescan.
	pollUntil(t,
		func() { writeManifest(t, root, "clock", `{"name": "after"}`) },
		func() bool {
			m, ok := r.Metadata("clock")
			return ok && m.Name == "after"
		},
		"manifest edit never reloaded")
}

func TestWatchPicksUpNewPluginDir(t *testing.T) {
	root := t.TempDir()

	r := plugin.NewRegistry(map[string]plugin.Factory{"clock": stubFactory}, nil)
	if _, err := r.LoadAll(root); err != nil {
		t.Fatal(err)
	}
	startWatch(t, r, root)

	pollUntil(t,
		func() { writeManifest(t, root, "photos", `{"name": "Photos"}`) },
		func() bool { return r.IsLoaded("photos") },
		"new plugin directory never loaded")
}
