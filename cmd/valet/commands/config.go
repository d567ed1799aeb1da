package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valetd/valet/pkg/valet/assistant"
)

// newConfigCmd creates the `valet config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage assistant configuration and credentials",
		Long: `Manage the Valet configuration.

Examples:
  valet config init
  valet config show
  valet config set-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat("config.yaml"); err == nil {
				return fmt.Errorf("config.yaml already exists")
			}
			if err := assistant.SaveConfigToFile(assistant.DefaultConfig(), "config.yaml"); err != nil {
				return err
			}
			fmt.Println("Configuration written to ./config.yaml")
			fmt.Println("Next: set your API key with 'valet config set-key'")
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration (secrets masked)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			// Never print the resolved key.
			masked := *cfg
			if masked.API.APIKey != "" && !assistant.IsEnvReference(masked.API.APIKey) {
				masked.API.APIKey = maskKey(masked.API.APIKey)
			}

			out, err := yaml.Marshal(&masked)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM API key securely",
		Long: `Store the API key in the OS keyring, or in the encrypted vault
(AES-256-GCM, master password) with --vault. Plaintext config storage is
never used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := assistant.ReadPassword("API key: ")
			if err != nil {
				return fmt.Errorf("reading key: %w", err)
			}
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("empty key")
			}

			useVault, _ := cmd.Flags().GetBool("vault")
			if !useVault && assistant.KeyringAvailable() {
				if err := assistant.StoreKeyring("api_key", key); err != nil {
					return fmt.Errorf("storing in keyring: %w", err)
				}
				fmt.Println("API key stored in the OS keyring.")
				return nil
			}

			return storeKeyInVault(key)
		},
	}
	cmd.Flags().Bool("vault", false, "store in the encrypted vault instead of the OS keyring")
	return cmd
}

// storeKeyInVault writes the key into the encrypted vault, creating it first
// when needed.
func storeKeyInVault(key string) error {
	vault := assistant.NewVault(assistant.VaultFile)

	if !vault.Exists() {
		fmt.Println("Creating a new encrypted vault. Choose a master password.")
		password, err := assistant.ReadPassword("Master password: ")
		if err != nil {
			return err
		}
		confirm, err := assistant.ReadPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
		if err := vault.Create(password); err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
	} else {
		password, err := assistant.ReadPassword("Vault password: ")
		if err != nil {
			return err
		}
		if err := vault.Unlock(password); err != nil {
			return err
		}
	}
	defer vault.Lock()

	if err := vault.Set("api_key", key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	fmt.Printf("API key stored in the encrypted vault (%s).\n", assistant.VaultFile)
	return nil
}

// maskKey shows only the first and last few characters of a secret.
func maskKey(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
