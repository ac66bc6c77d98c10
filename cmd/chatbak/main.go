package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chatbak/internal/app"
	"chatbak/internal/config"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError writes err and any hints attached to it.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.RedString("Error:"), err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("hint:"), hint)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "CreateBackup", "RestoreBackup").
func newApp(ctx context.Context, operation string, args []string) (*app.App, error) {
	defaults := app.GetDefaults()

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.WithHint(fmt.Errorf("reading config: %w", err), "run `chatbak config init` first")
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(ctx, cfg, app.Options{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Passphrase: readPassphrase,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase returns $CHATBAK_PASSPHRASE if set, otherwise prompts on the terminal.
func readPassphrase() (string, error) {
	if p, ok := os.LookupEnv(app.EnvPassphrase); ok {
		return p, nil
	}
	return promptPassphrase("Passphrase: ")
}

func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.WithHintf(errors.New("no terminal to read the passphrase from"),
			"set %s to supply it non-interactively", app.EnvPassphrase)
	}
	fmt.Fprint(os.Stderr, prompt)
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(p), nil
}

var rootCmd = &cobra.Command{
	Use:           "chatbak",
	Short:         "Back up and restore chat assistant state",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults := app.GetDefaults()
		cfg := config.NewConfig(defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Vault:    %s\n", cfg.Vault.FSRoot)
		fmt.Printf("Data Dir: %s\n", cfg.Store.DataDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults := app.GetDefaults()

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:        %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		switch cfg.Vault.Type {
		case "s3":
			fmt.Printf("Vault:           s3://%s/%s\n", cfg.Vault.S3Bucket, cfg.Vault.S3Prefix)
		default:
			fmt.Printf("Vault:           %s (%s)\n", cfg.Vault.FSRoot, cfg.Vault.Type)
		}
		fmt.Printf("Data Dir:        %s\n", cfg.Store.DataDir)
		fmt.Printf("Encryption:      %s\n", cfg.Encryption.Type)
		fmt.Printf("Database:        %s\n", cfg.Database.Type)
		fmt.Printf("Keep Days:       %d\n", cfg.Retention.KeepDays)
		fmt.Printf("Max Chain Depth: %d\n", cfg.ChainDepth())
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "InitKeys", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		passphrase, ok := os.LookupEnv(app.EnvPassphrase)
		if !ok {
			if passphrase, err = promptPassphrase("New passphrase: "); err != nil {
				return err
			}
			confirm, err := promptPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return errors.New("passphrases do not match")
			}
		}

		if err := a.InitKeys(cmd.Context(), passphrase); err != nil {
			return err
		}
		enc := a.Config().Encryption
		fmt.Printf("Public key:  %s\n", enc.PublicKeyPath)
		fmt.Printf("Private key: %s\n", enc.PrivateKeyPath)
		fmt.Println(color.YellowString("Keep the passphrase safe: encrypted backups cannot be restored without it."))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View backup operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "GetHistory", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ops, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No backup operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				duration = op.Duration().Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-24s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				statusString(op.Status),
				duration,
				op.BackupID,
			)
			if op.Error != "" {
				fmt.Printf("    %s\n", color.RedString(op.Error))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
