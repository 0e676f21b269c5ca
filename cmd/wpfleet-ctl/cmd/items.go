package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/wpfleet/wpfleet/internal/api"
)

type itemList struct {
	Plugins []api.SitePlugin  `json:"plugins"`
	Themes  []api.SiteTheme   `json:"themes"`
	Errors  []api.SiteError   `json:"errors"`
	Results []api.ItemOutcome `json:"results"`
}

// collectionPath maps a kind to its API collection.
func collectionPath(kind api.ItemKind) string {
	if kind == api.KindTheme {
		return "/api/v1/themes"
	}
	return "/api/v1/plugins"
}

func listItems(kind api.ItemKind, siteID string) error {
	resp, err := NewClient().Get(collectionPath(kind) + siteQuery(siteID))
	if err != nil {
		return fmt.Errorf("error fetching %ss: %v", kind, err)
	}
	defer resp.Body.Close()

	var list itemList
	if _, err := DecodeData(resp, &list); err != nil {
		return err
	}
	printItems(list)
	return nil
}

// updateItems updates slugs on one site, or runs the site's own update-all
// when no slug is given.
func updateItems(kind api.ItemKind, siteID string, slugs []string) error {
	client := NewClient()
	if len(slugs) == 0 {
		resp, err := client.Post(sitePath(siteID, strings.TrimPrefix(collectionPath(kind), "/api/v1/"), "update-all"), nil)
		if err != nil {
			return fmt.Errorf("error updating %ss: %v", kind, err)
		}
		defer resp.Body.Close()

		var result api.BulkUpdateResult
		if _, err := DecodeData(resp, &result); err != nil {
			return err
		}
		fmt.Printf("Updated: %s\n", joinOrNone(result.Updated))
		fmt.Printf("Failed:  %s\n", joinOrNone(result.Failed))
		return nil
	}

	refs := make([]api.ItemRef, 0, len(slugs))
	for _, slug := range slugs {
		refs = append(refs, api.ItemRef{SiteID: siteID, Slug: slug})
	}
	resp, err := client.Post(collectionPath(kind)+"/update", map[string]interface{}{"items": refs})
	if err != nil {
		return fmt.Errorf("error updating %ss: %v", kind, err)
	}
	defer resp.Body.Close()

	var report itemList
	if _, err := DecodeData(resp, &report); err != nil {
		return err
	}
	printOutcomes(report.Results)
	printItems(report)
	return nil
}

func installItem(kind api.ItemKind, slug string, siteIDs []string) error {
	resp, err := NewClient().Post(collectionPath(kind)+"/install", map[string]interface{}{
		"slug":     slug,
		"site_ids": siteIDs,
	})
	if err != nil {
		return fmt.Errorf("error installing %s: %v", kind, err)
	}
	defer resp.Body.Close()

	var results []api.InstallResult
	if _, err := DecodeData(resp, &results); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SITE\tNAME\tRESULT")
	for _, result := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", result.SiteID, result.SiteName, result.Message)
	}
	w.Flush()
	return nil
}

func searchCatalog(kind api.ItemKind, query string) error {
	resp, err := NewClient().Get("/api/v1/catalog/" + string(kind) + "s?q=" + url.QueryEscape(query))
	if err != nil {
		return fmt.Errorf("error searching %ss: %v", kind, err)
	}
	defer resp.Body.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tVERSION\tRATING")
	if kind == api.KindTheme {
		var themes []api.CatalogTheme
		if _, err := DecodeData(resp, &themes); err != nil {
			return err
		}
		for _, theme := range themes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\n", theme.Slug, theme.Name, theme.Version, theme.Rating)
		}
	} else {
		var plugins []api.CatalogPlugin
		if _, err := DecodeData(resp, &plugins); err != nil {
			return err
		}
		for _, plugin := range plugins {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\n", plugin.Slug, plugin.Name, plugin.Version, plugin.Rating)
		}
	}
	w.Flush()
	return nil
}

// itemAction posts to /{collection}/{slug}/{verb}?site=.
func itemAction(kind api.ItemKind, siteID, slug, verb string) error {
	resp, err := NewClient().Post(collectionPath(kind)+"/"+url.PathEscape(slug)+"/"+verb+siteQuery(siteID), nil)
	if err != nil {
		return fmt.Errorf("error calling %s %s: %v", kind, verb, err)
	}
	defer resp.Body.Close()

	var outcome api.ItemOutcome
	if _, err := DecodeData(resp, &outcome); err != nil {
		return err
	}
	fmt.Printf("%s %s on %s: done\n", slug, verb, outcome.SiteName)
	return nil
}

func printItems(list itemList) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SITE\tSLUG\tNAME\tVERSION\tSTATUS\tUPDATE")
	for _, p := range list.Plugins {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.SiteName, p.Slug, p.Name, p.Version, p.Status, updateLabel(p.UpdateAvailable, p.LatestVersion))
	}
	for _, t := range list.Themes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.SiteName, t.Slug, t.Name, t.Version, t.Status, updateLabel(t.UpdateAvailable, t.LatestVersion))
	}
	w.Flush()

	for _, e := range list.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s (%s): %s\n", e.SiteName, e.SiteID, e.Message)
	}
}

func printOutcomes(outcomes []api.ItemOutcome) {
	for _, o := range outcomes {
		result := "updated"
		if !o.Success {
			result = "failed: " + o.Message
		}
		fmt.Printf("%s on %s: %s\n", o.Slug, o.SiteName, result)
	}
}

func updateLabel(available bool, latest string) string {
	if !available {
		return "-"
	}
	return "-> " + latest
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
