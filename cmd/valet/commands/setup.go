package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/valetd/valet/pkg/valet/assistant"
)

// newSetupCmd creates the `valet setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Walks through creating your initial config.yaml: assistant name,
model, timezone, and API endpoint. The API key goes into the OS keyring or
the encrypted vault — never into the config file.

Examples:
  valet setup`,
		RunE: runSetup,
	}
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := assistant.DefaultConfig()

	var apiKey string
	keyStorage := "keyring"
	if !assistant.KeyringAvailable() {
		keyStorage = "vault"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Value(&cfg.Name),
			huh.NewInput().
				Title("Model").
				Description("Any model your endpoint serves, e.g. gpt-4o-mini").
				Value(&cfg.Model),
			huh.NewInput().
				Title("Timezone").
				Description("IANA name used to resolve \"tomorrow at 3pm\", e.g. America/New_York").
				Value(&cfg.Timezone),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Description("Any OpenAI-compatible endpoint").
				Value(&cfg.API.BaseURL),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Description("Leave empty to set later with 'valet config set-key'").
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Where should the key be stored?").
				Options(
					huh.NewOption("OS keyring (recommended)", "keyring"),
					huh.NewOption("Encrypted vault (master password)", "vault"),
				).
				Value(&keyStorage),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	if err := assistant.SaveConfigToFile(cfg, "config.yaml"); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Println("Configuration written to ./config.yaml")

	if strings.TrimSpace(apiKey) != "" {
		switch keyStorage {
		case "vault":
			if err := storeKeyInVault(apiKey); err != nil {
				return err
			}
		default:
			if err := assistant.StoreKeyring("api_key", apiKey); err != nil {
				return fmt.Errorf("storing in keyring: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
		}
	}

	fmt.Println()
	fmt.Println("All set. Try: valet chat \"remind me to stretch in an hour\"")
	return nil
}
