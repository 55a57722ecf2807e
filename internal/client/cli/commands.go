package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/client/repositories/outbox"
	syncpkg "github.com/avoronin/paperkeep/internal/client/sync"
)

func (a *App) statusLine() string {
	mode := "offline"
	if a.watcher.Online() {
		mode = "online"
	}
	st := a.orch.Status()
	switch {
	case st.Pulling:
		return mode + ", pulling"
	case st.Pushing:
		return mode + ", pushing"
	}
	return mode
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	if err := a.session.Login(ctx, email, string(password)); err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}
	log.Printf("Login successful")

	// Hydrate a possibly empty or stale local store.
	if _, err := a.orch.SyncAfterLogin(ctx); err != nil {
		log.Printf("Initial pull failed: %s", err.Error())
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	log.Printf("Logged out")
	return nil
}

func parseKind(kind string) (models.EntityType, error) {
	t := models.EntityType(kind)
	if !t.Valid() {
		return "", fmt.Errorf("unknown record type %q", kind)
	}
	return t, nil
}

// Add prompts for the fields of one record kind and stores it. The remote
// delivery is queued in the same transaction; no connectivity is needed.
func (a *App) Add(ctx context.Context, kind string) error {
	t, err := parseKind(kind)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	payload, err := a.promptPayload(t)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	id, err := a.records.Create(ctx, payload)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn("Created", kind, id)
	return nil
}

func (a *App) promptPayload(t models.EntityType) (models.TypedPayload, error) {
	r, w := a.reader, os.Stdout
	switch t {
	case models.EntityReceipt:
		merchant, err := GetSimpleText(r, "Merchant", w)
		if err != nil {
			return nil, err
		}
		amount, err := GetAmount(r, "Total amount", w)
		if err != nil {
			return nil, err
		}
		return models.Receipt{Merchant: merchant, TotalAmount: amount, Currency: "EUR", PurchasedAt: time.Now().UTC()}, nil

	case models.EntityDevice:
		name, err := GetSimpleText(r, "Device name", w)
		if err != nil {
			return nil, err
		}
		return models.Device{Name: name, PurchasedAt: time.Now().UTC()}, nil

	case models.EntityBill:
		payee, err := GetSimpleText(r, "Payee", w)
		if err != nil {
			return nil, err
		}
		amount, err := GetAmount(r, "Amount", w)
		if err != nil {
			return nil, err
		}
		due, err := GetSimpleText(r, "Due date (YYYY-MM-DD)", w)
		if err != nil {
			return nil, err
		}
		dueAt, err := time.Parse("2006-01-02", due)
		if err != nil {
			return nil, err
		}
		return models.Bill{Payee: payee, Amount: amount, Currency: "EUR", DueAt: dueAt}, nil

	case models.EntityReminder:
		title, err := GetSimpleText(r, "Title", w)
		if err != nil {
			return nil, err
		}
		at, err := GetSimpleText(r, "Remind at (YYYY-MM-DD)", w)
		if err != nil {
			return nil, err
		}
		remindAt, err := time.Parse("2006-01-02", at)
		if err != nil {
			return nil, err
		}
		return models.Reminder{Title: title, RemindAt: remindAt}, nil

	case models.EntityDocument:
		title, err := GetSimpleText(r, "Title", w)
		if err != nil {
			return nil, err
		}
		return models.Document{Title: title}, nil

	case models.EntitySubscription:
		service, err := GetSimpleText(r, "Service", w)
		if err != nil {
			return nil, err
		}
		amount, err := GetAmount(r, "Amount", w)
		if err != nil {
			return nil, err
		}
		return models.Subscription{Service: service, Amount: amount, Currency: "EUR", Interval: "monthly", Active: true}, nil

	case models.EntitySettings:
		currency, err := GetSimpleText(r, "Currency", w)
		if err != nil {
			return nil, err
		}
		return models.Settings{Currency: currency}, nil
	}
	return nil, models.ErrUnknownEntityType
}

func (a *App) List(ctx context.Context, kind string) error {
	t, err := parseKind(kind)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	rows, err := a.records.List(ctx, t)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	for _, rec := range rows {
		printlnFn(rec.ID, string(rec.State), summary(rec))
	}
	printlnFn(len(rows), "record(s)")
	return nil
}

func summary(rec models.Record) string {
	p, err := models.UnwrapPayload(rec.Type, rec.Fields)
	if err != nil {
		return "(unreadable)"
	}
	switch v := p.(type) {
	case models.Receipt:
		return fmt.Sprintf("%s %.2f %s", v.Merchant, v.TotalAmount, v.Currency)
	case models.Device:
		return v.Name
	case models.Bill:
		return fmt.Sprintf("%s %.2f %s due %s", v.Payee, v.Amount, v.Currency, v.DueAt.Format("2006-01-02"))
	case models.Reminder:
		return fmt.Sprintf("%s at %s", v.Title, v.RemindAt.Format("2006-01-02"))
	case models.Document:
		return v.Title
	case models.Subscription:
		return fmt.Sprintf("%s %.2f %s / %s", v.Service, v.Amount, v.Currency, v.Interval)
	case models.Settings:
		return v.Currency
	}
	return ""
}

func (a *App) Show(ctx context.Context, kind, id string) error {
	t, err := parseKind(kind)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	rec, err := a.records.Get(ctx, t, id)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn(rec.ID, string(rec.State))
	printlnFn(string(rec.Fields))
	return nil
}

func (a *App) Delete(ctx context.Context, kind, id string) error {
	t, err := parseKind(kind)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	if err := a.records.Delete(ctx, t, id); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn("Deleted", kind, id)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	res, err := a.orch.FullSync(ctx)
	if err != nil {
		log.Printf("sync failed: %v", err)
		return err
	}
	a.printPull(res.Pull)
	a.printPush(res.Push)
	return nil
}

func (a *App) Push(ctx context.Context) error {
	res, err := a.orch.PushSync(ctx)
	if err != nil {
		log.Printf("push failed: %v", err)
		return err
	}
	a.printPush(res)
	return nil
}

func (a *App) Pull(ctx context.Context) error {
	res, err := a.orch.PullSync(ctx)
	if err != nil {
		log.Printf("pull failed: %v", err)
		return err
	}
	a.printPull(res)
	return nil
}

func (a *App) printPush(res *syncpkg.PushResult) {
	printlnFn(fmt.Sprintf("push: %d delivered, %d deleted, %d failed, %d deferred",
		res.Succeeded, res.Deleted, res.Failed, res.Retried))
}

func (a *App) printPull(res *syncpkg.MergeResult) {
	for t, c := range res.Collections {
		printlnFn(fmt.Sprintf("pull %s: %d new, %d updated, %d kept local", t, c.Inserted, c.Updated, c.Skipped))
	}
	for t, msg := range res.Failed {
		printlnFn(fmt.Sprintf("pull %s: skipped (%s)", t, msg))
	}
}

func (a *App) Status(ctx context.Context) error {
	st := a.orch.Status()
	printlnFn("online: ", a.watcher.Online())
	if !st.LastPullAt.IsZero() {
		printlnFn("last pull:", st.LastPullAt.Format(time.RFC3339))
	}
	if !st.LastPushAt.IsZero() {
		printlnFn("last push:", st.LastPushAt.Format(time.RFC3339))
	}
	if st.PullError != "" {
		printlnFn("pull error:", st.PullError)
	}
	if st.PushError != "" {
		printlnFn("push error:", st.PushError)
	}
	return nil
}

func (a *App) Outbox(ctx context.Context) error {
	ob := outbox.NewSQLiteRepository(a.db)

	pending, err := ob.Pending(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	for _, e := range pending {
		line := fmt.Sprintf("#%d %s %s %s retries=%d", e.SeqNo, e.Op, e.Type, e.EntityID, e.RetryCount)
		if e.LastError != "" {
			line += " lastError=" + e.LastError
		}
		printlnFn(line)
	}

	dead, err := ob.DeadLettered(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	for _, e := range dead {
		printlnFn(fmt.Sprintf("dead #%d %s %s %s: %s", e.SeqNo, e.Op, e.Type, e.EntityID, e.LastError))
	}
	printlnFn(len(pending), "pending,", len(dead), "dead-lettered")
	return nil
}
