package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/slaythrax/clamui-sub000/internal/events"
)

func TestUpdateDownloadsAllDatabases(t *testing.T) {
	served := map[string]string{
		"/daily.cvd":    "daily-signatures",
		"/main.cvd":     "main-signatures",
		"/bytecode.cvd": "bytecode-signatures",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := served[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := t.TempDir()
	bus := events.NewBus(8)
	defer bus.Close()
	updated := bus.Subscribe(events.EventDefinitionsUpdated)

	u := New(Options{Mirror: srv.URL, DestDir: dest, Logger: zerolog.Nop(), Bus: bus})
	require.NoError(t, u.Update(context.Background()))

	for name, want := range map[string]string{
		"daily.cvd":    "daily-signatures",
		"main.cvd":     "main-signatures",
		"bytecode.cvd": "bytecode-signatures",
	} {
		data, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		require.Equal(t, want, string(data))
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	select {
	case ev := <-updated:
		require.NoError(t, ev.(*events.DefinitionsUpdatedEvent).Err)
	default:
		t.Fatal("no definitions-updated event published")
	}
}

func TestUpdateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := t.TempDir()
	bus := events.NewBus(8)
	defer bus.Close()
	updated := bus.Subscribe(events.EventDefinitionsUpdated)

	u := New(Options{Mirror: srv.URL, DestDir: dest, Logger: zerolog.Nop(), Bus: bus})
	require.Error(t, u.Update(context.Background()))

	select {
	case ev := <-updated:
		require.Error(t, ev.(*events.DefinitionsUpdatedEvent).Err)
	default:
		t.Fatal("no definitions-updated event published")
	}
}

func TestUpdateLeavesExistingFilesOnFailure(t *testing.T) {
	// daily succeeds, main fails: daily must stay installed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/daily.cvd" {
			_, _ = w.Write([]byte("daily-signatures"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := t.TempDir()
	u := New(Options{Mirror: srv.URL, DestDir: dest, Logger: zerolog.Nop()})
	require.Error(t, u.Update(context.Background()))

	data, err := os.ReadFile(filepath.Join(dest, "daily.cvd"))
	require.NoError(t, err)
	require.Equal(t, "daily-signatures", string(data))
}
