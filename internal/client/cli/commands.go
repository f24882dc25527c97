package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/client/jurisdiction"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/client/repositories/localstore"
	"github.com/dmitrijs2005/consentkeeper/internal/client/services"
)

var ErrUsage = errors.New("wrong arguments")

func (a *App) Init(ctx context.Context, args []string) error {
	h := http.Header{}
	if len(args) > 0 {
		h.Set(jurisdiction.HeaderCountry, args[0])
	}
	if len(args) > 1 {
		h.Set(jurisdiction.HeaderAcceptLanguage, args[1])
	}

	resp, err := a.service.Init(ctx, h)
	if err != nil {
		return err
	}

	source := "backend"
	if resp.Offline {
		source = "local"
	}
	fmt.Fprintf(a.out, "Jurisdiction: %s (%s)\n", resp.Jurisdiction.Code, resp.Jurisdiction.Message)
	fmt.Fprintf(a.out, "Show banner: %t, language: %s, resolved by %s\n", resp.ShowConsentBanner, resp.Language, source)
	return nil
}

func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) == 0 {
		line, err := GetSimpleText(a.reader, "Enter decisions as name=true|false separated by spaces", a.out)
		if err != nil {
			return err
		}
		args = strings.Fields(line)
	}
	consents, err := models.PreferencesFromStrings(args)
	if err != nil {
		return err
	}

	res, err := a.service.SetConsent(ctx, services.SetConsentInput{Consents: consents})
	if err != nil {
		return err
	}
	return a.report(res)
}

func (a *App) Identify(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("%w: identify <external-id> [provider]", ErrUsage)
	}
	in := services.IdentifyInput{ExternalID: args[0]}
	if len(args) == 2 {
		in.IdentityProvider = args[1]
	}

	res, err := a.service.IdentifyUser(ctx, in)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintln(a.out, "Already identified")
		return nil
	}
	return a.report(res)
}

func (a *App) report(res *services.Result) error {
	switch {
	case !res.OK:
		return res.Err()
	case res.Queued:
		fmt.Fprintln(a.out, "Saved locally, delivery queued")
	default:
		fmt.Fprintln(a.out, "Saved")
	}
	return nil
}

func (a *App) Show(ctx context.Context) error {
	rec := a.service.Consent(ctx)
	if rec == nil {
		fmt.Fprintln(a.out, "No consent stored")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	names := make([]string, 0, len(rec.Consents))
	for name := range rec.Consents {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%t\n", name, rec.Consents[name])
	}

	info := rec.ConsentInfo
	fmt.Fprintf(tw, "given at\t%s\n", rec.GivenAt().UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "subject\t%s\n", info.SubjectID)
	if info.ID != "" {
		fmt.Fprintf(tw, "consent id\t%s\n", info.ID)
	}
	if info.ExternalID != "" {
		fmt.Fprintf(tw, "external id\t%s (identified: %t)\n", info.ExternalID, info.Identified)
	}
	return tw.Flush()
}

func (a *App) Pending(ctx context.Context) error {
	ops, err := a.service.Pending(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(a.out, "Nothing queued")
		return nil
	}
	for i, op := range ops {
		fmt.Fprintf(a.out, "%d. %s %s\n", i+1, op.Kind, op.Body)
	}
	return nil
}

func (a *App) Replay(ctx context.Context) error {
	remaining, err := a.service.ReplayPending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Replay finished, %d still queued\n", len(remaining))
	return nil
}

func (a *App) Clear(ctx context.Context) error {
	if err := a.service.ClearConsent(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Consent cleared")
	return nil
}

// Storage prints the local storage entries, optionally filtered by key prefix.
func (a *App) Storage(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: storage [prefix]", ErrUsage)
	}
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	entries, err := localstore.NewSQLiteRepository(a.db).List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "Local storage is empty")
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, entries[k])
	}
	return tw.Flush()
}

// Reset wipes local storage, queued requests included, after confirmation.
// The consent cookie is removed through ClearConsent.
func (a *App) Reset(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader, "This drops the stored consent and every queued request. Type 'yes' to continue", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Reset cancelled")
		return nil
	}

	if err := a.service.ClearConsent(ctx); err != nil {
		return err
	}
	if err := localstore.NewSQLiteRepository(a.db).Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Local state reset")
	return nil
}
