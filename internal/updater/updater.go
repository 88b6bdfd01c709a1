// Package updater downloads ClamAV signature databases from a mirror and
// installs them atomically into the definitions directory.
package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/events"
)

// databases are the signature files a full installation needs, in download
// order. daily.cvd changes most often.
var databases = []string{"daily.cvd", "main.cvd", "bytecode.cvd"}

// retryLogger adapts zerolog to the retryablehttp.LeveledLogger interface.
// Only warnings and errors surface; retry chatter stays quiet.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Interface("detail", keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Interface("detail", keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Options configures an Updater.
type Options struct {
	// Mirror is the base URL serving the .cvd files.
	Mirror string
	// DestDir receives the installed databases.
	DestDir string
	Logger  zerolog.Logger
	Bus     *events.Bus
}

// Updater downloads definitions with retrying HTTP.
type Updater struct {
	mirror string
	dest   string
	log    zerolog.Logger
	bus    *events.Bus
	client *http.Client
}

// New creates an Updater.
func New(opts Options) *Updater {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = &retryLogger{log: opts.Logger}

	return &Updater{
		mirror: strings.TrimSuffix(opts.Mirror, "/"),
		dest:   opts.DestDir,
		log:    opts.Logger,
		bus:    opts.Bus,
		client: retryClient.StandardClient(),
	}
}

// Update downloads every database and installs each atomically. The first
// failure aborts the run; already-installed files stay in place.
func (u *Updater) Update(ctx context.Context) error {
	if err := os.MkdirAll(u.dest, 0755); err != nil {
		return fmt.Errorf("create definitions dir: %w", err)
	}

	var err error
	for _, name := range databases {
		if err = u.fetch(ctx, name); err != nil {
			err = fmt.Errorf("update %s: %w", name, err)
			break
		}
	}

	if u.bus != nil {
		u.bus.Publish(&events.DefinitionsUpdatedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventDefinitionsUpdated, Time: time.Now()},
			Err:       err,
		})
	}
	if err != nil {
		return err
	}

	u.log.Info().Str("dir", u.dest).Msg("definitions updated")
	return nil
}

func (u *Updater) fetch(ctx context.Context, name string) error {
	url := u.mirror + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(u.dest, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filepath.Join(u.dest, name)); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	u.log.Info().Str("database", name).Int64("bytes", n).Msg("database downloaded")
	return nil
}
