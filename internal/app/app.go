// Package app is the composition root of the main process. It owns exactly
// one tray Supervisor plus the scanner, quarantine, scheduler, updater and
// notifier, and runs the main-process UI dispatch loop.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/config"
	"github.com/slaythrax/clamui-sub000/internal/events"
	"github.com/slaythrax/clamui-sub000/internal/logging"
	"github.com/slaythrax/clamui-sub000/internal/notify"
	"github.com/slaythrax/clamui-sub000/internal/quarantine"
	"github.com/slaythrax/clamui-sub000/internal/scanner"
	"github.com/slaythrax/clamui-sub000/internal/scheduler"
	"github.com/slaythrax/clamui-sub000/internal/trayproto"
	"github.com/slaythrax/clamui-sub000/internal/traysup"
	"github.com/slaythrax/clamui-sub000/internal/uiloop"
	"github.com/slaythrax/clamui-sub000/internal/updater"
)

// App is the long-running host application behind `clamui run`.
type App struct {
	log  zerolog.Logger
	loop *uiloop.Loop
	bus  *events.Bus

	settingsPath string
	mu           sync.Mutex
	settings     *config.Settings

	sup      *traysup.Supervisor
	scan     *scanner.Scanner
	store    *quarantine.Store
	sched    *scheduler.Scheduler
	upd      *updater.Updater
	notifier *notify.Notifier
	watcher  *config.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	scanning      atomic.Bool
	windowVisible bool
}

// New loads settings and assembles the application. Nothing is started yet.
func New(settingsPath string) (*App, error) {
	if settingsPath == "" {
		settingsPath = config.SettingsPath()
	}
	if err := config.EnsureDirs(); err != nil {
		return nil, err
	}

	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	log := logging.New("app")
	bus := events.NewBus(0)

	store, err := quarantine.Open(
		filepath.Join(config.QuarantineDir(), "quarantine.db"),
		filepath.Join(config.QuarantineDir(), "vault"),
		logging.New("quarantine"),
		bus,
	)
	if err != nil {
		bus.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		log:          log,
		loop:         uiloop.New(),
		bus:          bus,
		settingsPath: settingsPath,
		settings:     settings,
		store:        store,
		notifier:     notify.New(logging.New("notify"), settings.Notifications.Enabled),
		ctx:          ctx,
		cancel:       cancel,
		// The main window starts visible; window rendering itself lives
		// outside this process core.
		windowVisible: true,
	}

	a.scan = scanner.New(scanner.Options{
		BinPath:     settings.Scanner.BinPath,
		Logger:      logging.New("scanner"),
		Bus:         bus,
		DatabaseDir: definitionsDirIfPopulated(),
	})
	a.upd = updater.New(updater.Options{
		Mirror:  settings.Updater.Mirror,
		DestDir: config.DefinitionsDir(),
		Logger:  logging.New("updater"),
		Bus:     bus,
	})
	a.sched = scheduler.New(logging.New("scheduler"), func() {
		a.startScan(a.currentProfileID())
	})
	a.sched.Configure(settings.Scheduler.Enabled,
		time.Duration(settings.Scheduler.IntervalMinutes)*time.Minute)

	return a, nil
}

// Run starts every component and blocks on the UI loop until Quit. Always
// returns with the tray subprocess stopped and stores closed.
func (a *App) Run() error {
	if err := a.startTray(); err != nil {
		// The app is usable without a tray; degrade instead of failing.
		a.log.Warn().Err(err).Msg("tray unavailable, continuing without it")
	}

	watcher, err := config.NewWatcher(a.settingsPath, logging.New("config"), a.settingsChanged)
	if err != nil {
		a.log.Warn().Err(err).Msg("settings watcher unavailable, live reload disabled")
	} else {
		a.watcher = watcher
	}

	go a.sched.Run(a.ctx)
	go a.forwardEvents()
	go a.handleSignals()

	a.log.Info().Msg("clamui started")
	a.loop.Run()

	a.shutdown()
	return nil
}

// Quit stops the application from any goroutine.
func (a *App) Quit() {
	a.cancel()
	a.loop.Stop()
}

// TriggerScan requests a scan of the current profile, as the scheduler does.
func (a *App) TriggerScan() {
	a.sched.TriggerNow()
}

func (a *App) shutdown() {
	a.cancel()
	if a.sup != nil {
		a.sup.Stop()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing quarantine store")
	}
	a.log.Info().Msg("clamui stopped")
}

// startTray spawns the tray subprocess and wires its callbacks.
func (a *App) startTray() error {
	a.mu.Lock()
	trayCfg := a.settings.Tray
	a.mu.Unlock()

	if !trayCfg.Enabled {
		a.log.Info().Msg("tray disabled in settings")
		return nil
	}

	binPath := trayCfg.BinPath
	if binPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		binPath = filepath.Join(filepath.Dir(exe), "clamui-tray")
	}

	sup := traysup.New(traysup.Options{
		BinPath:    binPath,
		Logger:     logging.New("traysup"),
		Dispatcher: a.loop,
	})
	sup.OnReady(a.pushTrayState)
	sup.OnMenuAction(a.menuAction)
	sup.OnUnavailable(func(err error) {
		a.log.Error().Err(err).Msg("tray indicator lost")
		a.notifier.TrayUnavailable()
	})

	if err := sup.Start(); err != nil {
		return err
	}
	a.sup = sup
	return nil
}

// pushTrayState sends the initial indicator state after the ready handshake.
// Runs on the UI loop.
func (a *App) pushTrayState() {
	a.mu.Lock()
	settings := a.settings
	a.mu.Unlock()

	a.sup.UpdateStatus(trayproto.StatusProtected)
	a.sup.UpdateWindowVisible(a.windowVisible)
	a.sup.UpdateProfiles(trayProfiles(settings), settings.CurrentProfile)
}

// menuAction handles one tray menu interaction. Runs on the UI loop.
func (a *App) menuAction(action trayproto.MenuAction, profileID string) {
	a.log.Debug().Str("action", string(action)).Str("profile", profileID).Msg("menu action")

	switch action {
	case trayproto.MenuQuickScan:
		a.startScan("quick")

	case trayproto.MenuFullScan:
		a.startScan("full")

	case trayproto.MenuUpdate:
		go func() {
			if err := a.upd.Update(a.ctx); err != nil {
				a.log.Error().Err(err).Msg("definitions update failed")
			}
		}()

	case trayproto.MenuToggleWindow:
		a.windowVisible = !a.windowVisible
		if a.sup != nil {
			a.sup.UpdateWindowVisible(a.windowVisible)
		}

	case trayproto.MenuSelectProfile:
		a.selectProfile(profileID)

	case trayproto.MenuQuit:
		a.Quit()
	}
}

func (a *App) selectProfile(profileID string) {
	a.mu.Lock()
	if _, ok := a.settings.ProfileByID(profileID); !ok {
		a.mu.Unlock()
		a.log.Warn().Str("profile", profileID).Msg("unknown profile selected")
		return
	}
	a.settings.CurrentProfile = profileID
	settings := a.settings
	a.mu.Unlock()

	if err := settings.Save(a.settingsPath); err != nil {
		a.log.Error().Err(err).Msg("failed to save profile selection")
	}
	if a.sup != nil {
		a.sup.UpdateProfiles(trayProfiles(settings), profileID)
	}
}

func (a *App) currentProfileID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.settings.Current(); ok {
		return p.ID
	}
	return ""
}

// startScan runs one scan in the background. A second request while one is
// in flight is dropped; scans never overlap.
func (a *App) startScan(profileID string) {
	a.mu.Lock()
	profile, ok := a.settings.ProfileByID(profileID)
	a.mu.Unlock()
	if !ok {
		a.log.Warn().Str("profile", profileID).Msg("scan requested for unknown profile")
		return
	}

	if !a.scanning.CompareAndSwap(false, true) {
		a.log.Info().Str("profile", profileID).Msg("scan already running, ignoring request")
		return
	}

	if a.sup != nil {
		a.sup.UpdateStatus(trayproto.StatusScanning)
	}

	go func() {
		defer a.scanning.Store(false)

		summary, err := a.scan.Scan(a.ctx, profile.ID, profile.Paths)

		status := trayproto.StatusProtected
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			a.log.Error().Err(err).Str("profile", profile.ID).Msg("scan failed")
			status = trayproto.StatusWarning
		case summary != nil && len(summary.Findings) > 0:
			status = trayproto.StatusThreat
		}

		a.loop.Post(func() {
			if a.sup != nil {
				a.sup.UpdateProgress(0)
				a.sup.UpdateStatus(status)
			}
		})

		if err == nil && summary != nil {
			a.notifier.ScanComplete(summary.FilesScanned, len(summary.Findings), summary.Duration)
		}
	}()
}

// forwardEvents bridges the bus to the tray and quarantine: progress goes to
// the indicator, threats are vaulted and announced.
func (a *App) forwardEvents() {
	sub := a.bus.SubscribeAll()
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *events.ScanProgressEvent:
				pct := ev.Percentage
				a.loop.Post(func() {
					if a.sup != nil {
						a.sup.UpdateProgress(pct)
					}
				})

			case *events.ThreatFoundEvent:
				a.quarantineThreat(ev.Path, ev.Signature)

			case *events.DefinitionsUpdatedEvent:
				a.notifier.DefinitionsUpdated(ev.Err)
			}
		}
	}
}

func (a *App) quarantineThreat(path, signature string) {
	entry, err := a.store.Add(a.ctx, path, signature)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("failed to quarantine threat")
		return
	}
	a.log.Info().Str("id", entry.ID).Str("path", path).Msg("threat quarantined")
	a.notifier.ThreatFound(path, signature)
}

// settingsChanged applies a live settings reload from the watcher.
func (a *App) settingsChanged(s *config.Settings) {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()

	a.notifier.SetEnabled(s.Notifications.Enabled)
	a.sched.Configure(s.Scheduler.Enabled,
		time.Duration(s.Scheduler.IntervalMinutes)*time.Minute)

	a.loop.Post(func() {
		if a.sup != nil {
			a.sup.UpdateProfiles(trayProfiles(s), s.CurrentProfile)
		}
	})

	a.bus.Publish(&events.SettingsChangedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventSettingsChanged, Time: time.Now()},
		Source:    "watcher",
	})
}

func (a *App) handleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-ch:
		a.log.Info().Str("signal", sig.String()).Msg("shutting down")
		a.Quit()
	case <-a.ctx.Done():
	}
	signal.Stop(ch)
}

func trayProfiles(s *config.Settings) []trayproto.Profile {
	profiles := make([]trayproto.Profile, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		profiles = append(profiles, trayproto.Profile{ID: p.ID, Name: p.Name})
	}
	return profiles
}

// definitionsDirIfPopulated points clamscan at the downloaded databases only
// once the updater has actually installed some; otherwise clamscan falls
// back to the system databases.
func definitionsDirIfPopulated() string {
	dir := config.DefinitionsDir()
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return ""
	}
	return dir
}
