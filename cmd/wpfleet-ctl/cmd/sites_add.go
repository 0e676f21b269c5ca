package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/wpfleet/wpfleet/internal/api"
)

var (
	addName        string
	addURL         string
	addAPIKey      string
	addAPISecret   string
	addSkipPrompts bool
)

// sitesAddCmd represents the sites add command
var sitesAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Add a WordPress site",
	Long: `Add a WordPress site running the WP Manager Connector plugin.
You can provide a JSON file, use flags, or run interactively.

Examples:
  # From JSON file
  wpfleet-ctl sites add shop.json

  # Using flags (non-interactive)
  wpfleet-ctl sites add --name "Shop" --site-url https://shop.example.com --key KEY --secret SECRET --yes

  # Interactive mode (just run add)
  wpfleet-ctl sites add`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var draft api.SiteDraft

		if len(args) > 0 {
			fileData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading file: %v", err)
			}
			if err := json.Unmarshal(fileData, &draft); err != nil {
				return fmt.Errorf("invalid json file: %v", err)
			}
		} else if addSkipPrompts {
			if addName == "" || addURL == "" || addAPIKey == "" || addAPISecret == "" {
				return fmt.Errorf("name, site-url, key and secret are required when using --yes")
			}
			draft = api.SiteDraft{Name: addName, URL: addURL, APIKey: addAPIKey, APISecret: addAPISecret}
		} else {
			var err error
			if draft.Name, err = promptValue("Site Name", addName, false); err != nil {
				return err
			}
			if draft.URL, err = promptValue("Site URL", addURL, false); err != nil {
				return err
			}
			if draft.APIKey, err = promptValue("API Key", addAPIKey, false); err != nil {
				return err
			}
			if draft.APISecret, err = promptValue("API Secret", addAPISecret, true); err != nil {
				return err
			}
		}

		resp, err := NewClient().Post("/api/v1/sites", draft)
		if err != nil {
			return fmt.Errorf("error adding site: %v", err)
		}
		defer resp.Body.Close()

		var site api.SiteView
		if _, err := DecodeData(resp, &site); err != nil {
			return err
		}
		fmt.Printf("Site added (%s). Status check running in the background.\n", site.ID)
		return nil
	},
}

// promptValue returns preset when set, otherwise asks for a required value.
func promptValue(label, preset string, secret bool) (string, error) {
	if preset != "" {
		return preset, nil
	}
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if len(input) == 0 {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		},
	}
	if secret {
		prompt.Mask = '*'
	}
	return prompt.Run()
}

func init() {
	sitesAddCmd.Flags().StringVar(&addName, "name", "", "Site name")
	sitesAddCmd.Flags().StringVar(&addURL, "site-url", "", "Site base URL")
	sitesAddCmd.Flags().StringVar(&addAPIKey, "key", "", "Connector API key")
	sitesAddCmd.Flags().StringVar(&addAPISecret, "secret", "", "Connector API secret")
	sitesAddCmd.Flags().BoolVarP(&addSkipPrompts, "yes", "y", false, "Skip interactive prompts")

	sitesCmd.AddCommand(sitesAddCmd)
}
