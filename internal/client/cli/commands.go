package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/quietlog/quietlog/internal/client/services"
)

func (a *App) Add(ctx context.Context) error {
	title, err := GetSimpleText(a.reader, "Enter title", a.out)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "- Enter entry text (double Enter to finish):", a.out)
	if err != nil {
		return err
	}
	tags, err := GetTags(a.reader, a.out)
	if err != nil {
		return err
	}

	id, err := a.entries.Create(ctx, services.CreateParams{Title: title, Body: body, Tags: tags})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "created %s\n", id)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	filter := services.ListFilter{TextContains: strings.Join(args, " ")}
	items, err := a.entries.List(ctx, filter, services.Page{Limit: 50})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "no entries")
		return nil
	}
	for _, it := range items {
		lock := " "
		if it.IsLocked {
			lock = "L"
		}
		fmt.Fprintf(a.out, "%s %s [%s] %s  v%d  %s\n",
			lock, it.UpdatedAt.Format("2006-01-02 15:04"), strings.Join(it.Tags, ","), it.Title, it.Version, it.ID)
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, "Enter entry id")
	if err != nil {
		return err
	}
	e, err := a.entries.Get(ctx, id)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "%s (v%d)\n", e.Title, e.Version)
	if len(e.Tags) > 0 {
		fmt.Fprintf(a.out, "tags: %s\n", strings.Join(e.Tags, ", "))
	}
	fmt.Fprintln(a.out, e.Body)
	return nil
}

func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, "Enter entry id")
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "- Enter new text (double Enter to finish):", a.out)
	if err != nil {
		return err
	}
	if err := a.entries.Update(ctx, id, services.UpdateParams{Body: &body}); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "updated")
	return nil
}

func (a *App) Tag(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, "Enter entry id")
	if err != nil {
		return err
	}
	tags, err := GetTags(a.reader, a.out)
	if err != nil {
		return err
	}
	if tags == nil {
		tags = []string{}
	}
	if err := a.entries.Update(ctx, id, services.UpdateParams{Tags: tags}); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "tags updated")
	return nil
}

func (a *App) Lock(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, "Enter entry id")
	if err != nil {
		return err
	}
	if err := a.entries.ToggleLock(ctx, id); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "lock toggled")
	return nil
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		id, err := a.argOrPrompt(args, "Enter entry id")
		if err != nil {
			return err
		}
		args = []string{id}
	}
	if err := a.entries.Delete(ctx, args); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "deleted %d entries\n", len(args))
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if a.engine == nil {
		fmt.Fprintln(a.out, "no server configured")
		return nil
	}
	if err := a.engine.Sync(ctx); err != nil {
		log.Printf("sync failed: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "synced")
	return nil
}

func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "usage: export <id> [id ...]")
		return nil
	}
	entries, warning, err := a.entries.Export(ctx, args)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "WARNING: %s\n", warning)
	for _, e := range entries {
		fmt.Fprintf(a.out, "--- %s (%s)\n%s\n", e.Title, e.ID, e.Body)
	}
	return nil
}

func (a *App) RotateKey(ctx context.Context) error {
	fmt.Fprintln(a.out, "rotating data key, this may take a while...")
	if err := a.entries.RotateKey(ctx); err != nil {
		log.Printf("rotation failed (safe to retry): %v", err)
		return err
	}
	fmt.Fprintln(a.out, "key rotated")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.entries.Status(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "pending changes: %d\nconflicts: %d\n", st.PendingChanges, st.Conflicts)
	if st.RotationInProgress {
		fmt.Fprintln(a.out, "key rotation in progress")
	}
	if a.engine != nil {
		info := a.engine.Info()
		fmt.Fprintf(a.out, "sync: %s", info.State)
		if info.Degraded {
			fmt.Fprint(a.out, " (degraded)")
		}
		if !info.LastSync.IsZero() {
			fmt.Fprintf(a.out, ", last success %s", info.LastSync.Format("15:04:05"))
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func (a *App) Conflicts(ctx context.Context) error {
	conflicts, err := a.entries.Conflicts(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(conflicts) == 0 {
		fmt.Fprintln(a.out, "no conflicts")
		return nil
	}
	for _, c := range conflicts {
		fmt.Fprintf(a.out, "%s  entry %s  %s side  v%d  %s\n",
			c.ShadowID, c.EntryID, c.Origin, c.Version, c.Title)
	}
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, "Enter shadow id")
	if err != nil {
		return err
	}
	if err := a.entries.RestoreConflict(ctx, id); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "restored")
	return nil
}

func (a *App) Discard(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, "Enter shadow id")
	if err != nil {
		return err
	}
	if err := a.entries.DiscardConflict(ctx, id); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintln(a.out, "discarded")
	return nil
}

func (a *App) argOrPrompt(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return GetSimpleText(a.reader, prompt, a.out)
}
