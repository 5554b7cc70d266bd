// Command screenruster is the ScreenRuster daemon and its CLI client,
// per spec.md §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/apperror"
	"github.com/screenruster/screenruster/internal/auth"
	"github.com/screenruster/screenruster/internal/config"
	"github.com/screenruster/screenruster/internal/coordinator"
	"github.com/screenruster/screenruster/internal/ipc"
	"github.com/screenruster/screenruster/internal/locker"
	"github.com/screenruster/screenruster/internal/preview"
	"github.com/screenruster/screenruster/internal/timer"
)

var globalArgs struct {
	Config string `flag:"config,Path to the configuration file"`
}

func newLogger() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).With().Timestamp().Str("service", "screenruster").Logger()
}

func main() {
	root := &command.C{
		Name:     "screenruster",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "daemon",
				Usage: "daemon",
				Help:  "Run the screenruster daemon.",
				Run:   command.Adapt(runDaemon),
			},
			{
				Name:  "lock",
				Usage: "lock",
				Help:  "Force the saver to start and lock immediately.",
				Run:   command.Adapt(runLock),
			},
			{
				Name:  "activate",
				Usage: "activate",
				Help:  "Start the saver, as if the idle timeout had fired.",
				Run:   command.Adapt(runActivate),
			},
			{
				Name:  "deactivate",
				Usage: "deactivate",
				Help:  "Stop the saver if it isn't locked.",
				Run:   command.Adapt(runDeactivate),
			},
			{
				Name:  "inhibit",
				Usage: "inhibit",
				Help:  "Prevent the saver from starting; prints a cookie.",
				Run:   command.Adapt(runInhibit),
			},
			{
				Name:  "uninhibit",
				Usage: "uninhibit cookie",
				Help:  "Release a cookie returned by inhibit.",
				Run:   command.Adapt(runUnInhibit),
			},
			{
				Name:  "throttle",
				Usage: "throttle",
				Help:  "Ask running savers to reduce their workload; prints a cookie.",
				Run:   command.Adapt(runThrottle),
			},
			{
				Name:  "unthrottle",
				Usage: "unthrottle cookie",
				Help:  "Release a cookie returned by throttle.",
				Run:   command.Adapt(runUnThrottle),
			},
			{
				Name:  "suspend",
				Usage: "suspend",
				Help:  "Tell the daemon a sleep is coming; prints a cookie.",
				Run:   command.Adapt(runSuspend),
			},
			{
				Name:  "resume",
				Usage: "resume cookie",
				Help:  "Release a cookie returned by suspend.",
				Run:   command.Adapt(runResume),
			},
			{
				Name:  "reload",
				Usage: "reload",
				Help:  "Reload the configuration file.",
				Run:   command.Adapt(runReload),
			},
			{
				Name:  "preview",
				Usage: "preview saver",
				Help:  "Run one saver in the foreground, outside the daemon.",
				Run:   command.Adapt(runPreview),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

// exitFor maps the daemon's error taxonomy onto the exit codes fixed
// by spec.md §6, then terminates the process. Every CLI verb routes
// its error here instead of returning it, so command.RunOrFail's own
// fallback exit(1) is only ever reached for malformed invocations.
func exitFor(err error) {
	if err == nil {
		return
	}
	var parseErr apperror.ConfigParse
	var conflict apperror.BusRegistrationConflict
	var unavailable apperror.BusUnavailable
	switch {
	case errors.As(err, &parseErr):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	case errors.As(err, &conflict):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(10)
	case errors.As(err, &unavailable):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(11)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(255)
	}
}

// --- daemon ---

func runDaemon(env *command.Env) error {
	log := newLogger()

	cfg, err := config.Load(globalArgs.Config)
	if err != nil {
		exitFor(err)
		return nil
	}

	a, err := auth.New(cfg.Auth(), auth.BuildMethods(cfg.Auth()), log)
	if err != nil {
		exitFor(err)
		return nil
	}

	lockerCfg := cfg.Locker()
	l, err := locker.SpawnX11(lockerCfg.Display, toLockerConfig(lockerCfg, cfg.Saver()), log)
	if err != nil {
		exitFor(err)
		return nil
	}

	t := timer.Spawn(toTimerConfig(cfg.Timer()), log)

	svc, err := ipc.New(cfg.Interface(), log)
	if err != nil {
		exitFor(err)
		return nil
	}

	newTimer := func(tc config.Timer) coordinator.TimerPeer { return timer.Spawn(toTimerConfig(tc), log) }
	coordinator.Spawn(l, t, a, svc, cfg, newTimer, log)

	log.Info().Msg("screenruster daemon running")
	<-env.Context().Done()
	log.Info().Msg("shutting down")
	svc.Close()
	l.Close()
	return nil
}

func toTimerConfig(t config.Timer) timer.Config {
	tc := timer.Config{
		Beat:    time.Duration(t.Beat) * time.Second,
		Timeout: time.Duration(t.Timeout) * time.Second,
	}
	if t.Lock != nil {
		d := time.Duration(*t.Lock) * time.Second
		tc.Lock = &d
	}
	if t.Blank != nil {
		d := time.Duration(*t.Blank) * time.Second
		tc.Blank = &d
	}
	return tc
}

func toLockerConfig(l config.Locker, s config.Saver) locker.Config {
	return locker.Config{
		SaverNames:     s.Use,
		SaverArgs:      func(name string) []string { return nil },
		SaverConfig:    func(name string) map[string]interface{} { return s.Get(name) },
		SaverTimeout:   uint64(s.Timeout),
		StaticThrottle: s.Throttle,
		DPMS:           l.DPMS,
	}
}

// --- bus client ---

func dial() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, apperror.BusUnavailable{Reason: err}
	}
	return conn, nil
}

func gnomeCall(method string, ret interface{}, args ...interface{}) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	obj := conn.Object(ipc.GnomeBusName, dbus.ObjectPath(ipc.GnomePath))
	call := obj.Call(ipc.GnomeIface+"."+method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if ret != nil {
		return call.Store(ret)
	}
	return nil
}

func privateCall(method string, ret interface{}, args ...interface{}) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	obj := conn.Object(ipc.PrivateBusName, dbus.ObjectPath(ipc.PrivatePath))
	call := obj.Call(ipc.PrivateIface+"."+method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if ret != nil {
		return call.Store(ret)
	}
	return nil
}

func parseCookie(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid cookie %q: %w", s, err)
	}
	return uint32(v), nil
}

// --- thin client verbs ---

func runLock(env *command.Env) error {
	exitFor(gnomeCall("Lock", nil))
	return nil
}

func runActivate(env *command.Env) error {
	exitFor(gnomeCall("SetActive", nil, true))
	return nil
}

func runDeactivate(env *command.Env) error {
	exitFor(gnomeCall("SetActive", nil, false))
	return nil
}

func runInhibit(env *command.Env) error {
	var cookie uint32
	if err := gnomeCall("Inhibit", &cookie, "screenruster-cli", "requested by operator"); err != nil {
		exitFor(err)
		return nil
	}
	fmt.Println(cookie)
	return nil
}

func runUnInhibit(env *command.Env, cookie string) error {
	c, err := parseCookie(cookie)
	if err != nil {
		exitFor(err)
		return nil
	}
	exitFor(gnomeCall("UnInhibit", nil, c))
	return nil
}

func runThrottle(env *command.Env) error {
	var cookie uint32
	if err := gnomeCall("Throttle", &cookie, "screenruster-cli", "requested by operator"); err != nil {
		exitFor(err)
		return nil
	}
	fmt.Println(cookie)
	return nil
}

func runUnThrottle(env *command.Env, cookie string) error {
	c, err := parseCookie(cookie)
	if err != nil {
		exitFor(err)
		return nil
	}
	exitFor(gnomeCall("UnThrottle", nil, c))
	return nil
}

func runSuspend(env *command.Env) error {
	var cookie uint32
	if err := privateCall("Suspend", &cookie, "screenruster-cli", "requested by operator"); err != nil {
		exitFor(err)
		return nil
	}
	fmt.Println(cookie)
	return nil
}

func runResume(env *command.Env, cookie string) error {
	c, err := parseCookie(cookie)
	if err != nil {
		exitFor(err)
		return nil
	}
	exitFor(privateCall("Resume", nil, c))
	return nil
}

func runReload(env *command.Env) error {
	var ok bool
	exitFor(privateCall("Reload", &ok, globalArgs.Config))
	return nil
}

func runPreview(env *command.Env, saverName string) error {
	log := newLogger()
	cfg, err := config.Load(globalArgs.Config)
	if err != nil {
		exitFor(err)
		return nil
	}
	exitFor(preview.Run(cfg.Saver(), saverName, log))
	return nil
}
