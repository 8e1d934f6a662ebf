// Package cli is the interactive front end. It stays thin: every command
// goes through the Entry Service or the sync engine.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/quietlog/quietlog/internal/client/config"
	"github.com/quietlog/quietlog/internal/client/keystore"
	"github.com/quietlog/quietlog/internal/client/remote"
	"github.com/quietlog/quietlog/internal/client/services"
	"github.com/quietlog/quietlog/internal/client/store"
	clientsync "github.com/quietlog/quietlog/internal/client/sync"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/filex"
	"github.com/quietlog/quietlog/internal/logging"
)

type App struct {
	config  *config.Config
	store   *store.Store
	keys    *keystore.KeyStore
	entries *services.EntryService
	engine  *clientsync.Engine
	replica *remote.HTTPReplica
	reader  *bufio.Reader
	out     *os.File
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	st, err := store.Open(ctx, c.DatabasePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	keys := keystore.New(c.KeyFilePath())
	entries := services.NewEntryService(st, keys, logger)

	a := &App{
		config:  c,
		store:   st,
		keys:    keys,
		entries: entries,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}

	if c.ServerAddr != "" {
		a.replica = remote.NewHTTPReplica(c.ServerAddr, c.RequestTimeout)
		a.engine = clientsync.New(st, a.replica, logger, clientsync.Options{Interval: c.SyncInterval})
	}
	return a, nil
}

// Run unlocks the key store, starts the background sync loop when a server
// is configured, then hands control to the REPL until EOF or exit.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if err := a.unlock(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.replica != nil {
		a.restoreSession(ctx)
		a.replica.OnTokens = a.persistTokens(ctx)
	}
	if a.engine != nil {
		go func() {
			if err := a.engine.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("sync loop stopped: %v", err)
			}
		}()
	}

	runREPL(ctx, a, a.promptStatus, bufio.NewScanner(os.Stdin))
	return nil
}

// unlock prompts for the passphrase until the key store opens, giving up
// after three wrong attempts.
func (a *App) unlock() error {
	for attempt := 0; attempt < 3; attempt++ {
		pw, err := GetPassphrase(a.out, "Enter passphrase")
		if err != nil {
			return err
		}
		err = a.keys.Unlock(pw)
		if err == nil {
			return nil
		}
		common.WipeByteArray(pw)
		fmt.Fprintln(a.out, "wrong passphrase")
	}
	return fmt.Errorf("too many failed unlock attempts")
}

func (a *App) promptStatus() string {
	if a.engine == nil {
		return "local-only"
	}
	info := a.engine.Info()
	if info.Degraded {
		return fmt.Sprintf("%s (degraded)", info.State)
	}
	return string(info.State)
}
