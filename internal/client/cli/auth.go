package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/quietlog/quietlog/internal/client/repositories/metadata"
	"github.com/quietlog/quietlog/internal/client/store"
	"github.com/quietlog/quietlog/internal/common"
)

// Register prompts for credentials and creates an account on the replica.
// The issued token pair is installed on the replica client, so sync can
// start right away.
func (a *App) Register(ctx context.Context) error {
	if a.replica == nil {
		fmt.Fprintln(a.out, "no server configured")
		return nil
	}

	login, password, err := a.promptCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.replica.Register(ctx, login, string(password)); err != nil {
		log.Printf("registration failed: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "registered")
	return nil
}

// Login authenticates against the replica and persists the refresh token,
// so the session survives a restart.
func (a *App) Login(ctx context.Context) error {
	if a.replica == nil {
		fmt.Fprintln(a.out, "no server configured")
		return nil
	}

	login, password, err := a.promptCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.replica.Login(ctx, login, string(password)); err != nil {
		log.Printf("login failed: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "logged in")

	if a.engine != nil {
		a.engine.SyncNow()
	}
	return nil
}

func (a *App) promptCredentials() (string, []byte, error) {
	login, err := GetSimpleText(a.reader, "Enter login", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := GetPassphrase(a.out, "Enter password")
	if err != nil {
		return "", nil, err
	}
	return login, password, nil
}

// restoreSession loads the persisted refresh token, if any. The access
// token is left empty; the first authed request gets a 401 and the client
// refreshes transparently.
func (a *App) restoreSession(ctx context.Context) {
	var token []byte
	err := a.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		token, err = tx.Metadata.Get(ctx, metadata.KeyRefreshToken)
		return err
	})
	if err != nil || len(token) == 0 {
		return
	}
	a.replica.SetTokens("", string(token))
}

// persistTokens saves the refresh token whenever the pair rotates.
func (a *App) persistTokens(ctx context.Context) func(access, refresh string) {
	return func(access, refresh string) {
		err := a.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
			return tx.Metadata.Set(ctx, metadata.KeyRefreshToken, []byte(refresh))
		})
		if err != nil {
			log.Printf("persisting session: %v", err)
		}
	}
}
