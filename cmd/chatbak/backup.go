package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"chatbak/internal/backup"
	"chatbak/internal/database"
)

const dateLayout = "2006-01-02"

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, restore and manage backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a full backup of every domain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createOptions(cmd)

		a, err := newApp(cmd.Context(), "CreateBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		rec, err := a.CreateBackup(cmd.Context(), opts)
		if rec != nil {
			fmt.Printf("Created %s backup %s (%s)\n", rec.Kind, color.CyanString(rec.ID), humanize.Bytes(uint64(rec.SizeBytes)))
		}
		return err
	},
}

var backupIncrementalCmd = &cobra.Command{
	Use:   "incremental BASE_ID",
	Short: "Back up the domains that changed since BASE_ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("desc")

		a, err := newApp(cmd.Context(), "CreateIncrementalBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		rec, err := a.CreateIncrementalBackup(cmd.Context(), args[0], backup.IncrementalOptions{Description: description})
		if err != nil {
			return err
		}
		fmt.Printf("Created incremental backup %s on %s (%s)\n",
			color.CyanString(rec.ID), rec.Base(), humanize.Bytes(uint64(rec.SizeBytes)))
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a backup into the application's data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, _ := cmd.Flags().GetBool("preview")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		a, err := newApp(cmd.Context(), "RestoreBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		res, err := a.RestoreBackup(cmd.Context(), args[0], backup.RestoreOptions{Preview: preview, Overwrite: overwrite})
		if res != nil {
			printRestoreResult(os.Stdout, res)
		}
		return err
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		kind, _ := cmd.Flags().GetString("type")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		filter, err := listFilter(kind, from, to)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ListBackups", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		records, err := a.ListBackups(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Println("No backups found.")
			return nil
		}
		return printRecords(os.Stdout, records)
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a backup and the chain needed to restore it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ShowBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		rec, chain, err := a.ShowBackup(cmd.Context(), args[0])
		if rec != nil {
			fmt.Printf("ID:          %s\n", rec.ID)
			fmt.Printf("Type:        %s\n", rec.Kind)
			fmt.Printf("Created:     %s (%s)\n", rec.CreatedAt.Local().Format(time.RFC3339), humanize.Time(rec.CreatedAt))
			fmt.Printf("Size:        %s\n", humanize.Bytes(uint64(rec.SizeBytes)))
			fmt.Printf("Encrypted:   %t\n", rec.Encrypted)
			fmt.Printf("Payload:     %s\n", rec.StoragePath)
			if rec.BasedOn != nil {
				fmt.Printf("Based On:    %s\n", *rec.BasedOn)
			}
			if rec.Description != "" {
				fmt.Printf("Description: %s\n", rec.Description)
			}
		}
		if len(chain) > 0 {
			fmt.Printf("\nRestore chain (%d):\n", len(chain))
			for i, link := range chain {
				fmt.Printf("  %d. %s  %s\n", i+1, link.ID, link.Kind)
			}
		}
		return err
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cascade, _ := cmd.Flags().GetBool("cascade")

		a, err := newApp(cmd.Context(), "DeleteBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		deleted, err := a.DeleteBackup(cmd.Context(), args[0], backup.DeleteOptions{Cascade: cascade})
		for _, id := range deleted {
			fmt.Printf("Deleted %s\n", id)
		}
		return err
	},
}

var backupExportCmd = &cobra.Command{
	Use:   "export ID PATH",
	Short: "Write a self-contained copy of a backup to PATH",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := exportFormat(cmd, args[1])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ExportBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		n, err := a.ExportBackup(cmd.Context(), args[0], args[1], format)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s (%s, %s)\n", args[0], args[1], format, humanize.Bytes(uint64(n)))
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Register an exported backup file as a new backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		decrypt, _ := cmd.Flags().GetBool("decrypt")
		description, _ := cmd.Flags().GetString("desc")

		a, err := newApp(cmd.Context(), "ImportBackup", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		rec, err := a.ImportBackup(cmd.Context(), args[0], backup.ImportOptions{
			Encrypt:     encrypt,
			Decrypt:     decrypt,
			Description: description,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s as %s\n", args[0], color.CyanString(rec.ID))
		return nil
	},
}

var backupCleanCmd = &cobra.Command{
	Use:   "clean [DAYS]",
	Short: "Delete backups older than DAYS (default: retention.keep_days)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days := -1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid number of days: %q", args[0])
			}
			days = n
		}

		a, err := newApp(cmd.Context(), "CleanOldBackups", args)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		res, err := a.CleanOldBackups(cmd.Context(), days)
		if res != nil {
			for _, id := range res.Deleted {
				fmt.Printf("Deleted %s\n", id)
			}
			for _, id := range res.Orphaned {
				fmt.Printf("%s %s can no longer be restored: its base was removed\n", color.YellowString("warning:"), id)
			}
			fmt.Printf("Removed %d backup(s) created before %s, freed %s\n",
				len(res.Deleted), res.Cutoff.Local().Format(dateLayout), humanize.Bytes(uint64(res.SpaceFreed)))
		}
		return err
	},
}

// listFilter builds a Filter from the --type, --from and --to flags. --to covers the whole day.
func listFilter(kind, from, to string) (backup.Filter, error) {
	var f backup.Filter
	if kind != "" {
		k, err := backup.ParseKind(kind)
		if err != nil {
			return f, err
		}
		f.Kind = k
	}
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return f, errors.WithHint(fmt.Errorf("invalid --from date: %w", err), "use YYYY-MM-DD")
		}
		f.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return f, errors.WithHint(fmt.Errorf("invalid --to date: %w", err), "use YYYY-MM-DD")
		}
		f.To = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return f, nil
}

// flagAliases keeps the older long flag names working.
var flagAliases = map[string]string{
	"keep-days":   "keep",
	"description": "desc",
}

func normalizeAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if alias, ok := flagAliases[name]; ok {
		name = alias
	}
	return pflag.NormalizedName(name)
}

func addCreateFlags(cmd *cobra.Command) {
	cmd.Flags().SetNormalizeFunc(normalizeAliases)
	cmd.Flags().BoolP("encrypt", "e", false, "Encrypt the payload with the configured key")
	cmd.Flags().Int("keep", 0, "Delete backups older than this many days afterwards (default: retention.keep_days)")
	cmd.Flags().StringP("desc", "d", "", "Free-form description")
}

func createOptions(cmd *cobra.Command) backup.CreateOptions {
	encrypt, _ := cmd.Flags().GetBool("encrypt")
	keep, _ := cmd.Flags().GetInt("keep")
	desc, _ := cmd.Flags().GetString("desc")
	return backup.CreateOptions{Encrypt: encrypt, KeepDays: keep, Description: desc}
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("gzip", false, "Write the compressed container format")
	cmd.Flags().String("format", "", "Export format: json or gzip (default: from the file extension)")
}

// exportFormat resolves --gzip and --format, falling back to the extension of path.
func exportFormat(cmd *cobra.Command, path string) (backup.ExportFormat, error) {
	gz, _ := cmd.Flags().GetBool("gzip")
	format, _ := cmd.Flags().GetString("format")
	switch {
	case gz && format != "" && format != string(backup.FormatGzip):
		return "", errors.WithHint(fmt.Errorf("--gzip conflicts with --format %s", format), "pass only one of them")
	case gz:
		return backup.FormatGzip, nil
	case format != "":
		return backup.ExportFormat(format), nil
	}
	return backup.ExportFormat(exportFormatFor(path)), nil
}

// exportFormatFor picks json for *.json paths and the container format otherwise.
func exportFormatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return string(backup.FormatJSON)
	}
	return string(backup.FormatGzip)
}

func printRecords(w io.Writer, records []*backup.BackupRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tCREATED\tSIZE\tENC\tBASE\tDESCRIPTION")
	for _, r := range records {
		enc := ""
		if r.Encrypted {
			enc = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, humanize.Time(r.CreatedAt), humanize.Bytes(uint64(r.SizeBytes)), enc, r.Base(), r.Description)
	}
	return tw.Flush()
}

func printRestoreResult(w io.Writer, res *backup.RestoreResult) {
	if res.Preview {
		fmt.Fprintf(w, "Preview of %s (nothing written):\n", res.BackupID)
	} else {
		fmt.Fprintf(w, "Restored %s (%s):\n", res.BackupID, res.Mode)
	}
	restored := make(map[backup.Domain]bool, len(res.Restored))
	for _, d := range res.Restored {
		restored[d] = true
	}
	for _, s := range res.Domains {
		mark := " "
		if restored[s.Domain] {
			mark = color.GreenString("✓")
		}
		fmt.Fprintf(w, "  %s %-10s %s\n", mark, s.Domain, humanize.Comma(int64(s.Items)))
	}
}

func statusString(status string) string {
	switch status {
	case database.StatusSuccess:
		return color.GreenString("%-8s", status)
	case database.StatusError:
		return color.RedString("%-8s", status)
	default:
		return color.YellowString("%-8s", status)
	}
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	addCreateFlags(backupCreateCmd)

	backupCmd.AddCommand(backupIncrementalCmd)
	backupIncrementalCmd.Flags().SetNormalizeFunc(normalizeAliases)
	backupIncrementalCmd.Flags().StringP("desc", "d", "", "Free-form description")

	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().Bool("preview", false, "Show what would be restored without writing anything")
	backupRestoreCmd.Flags().Bool("overwrite", false, "Replace current data instead of merging into it")

	backupCmd.AddCommand(backupListCmd)
	backupListCmd.Flags().String("type", "", "Only list backups of this type: full, incremental or imported")
	backupListCmd.Flags().String("from", "", "Only list backups created on or after this date (YYYY-MM-DD)")
	backupListCmd.Flags().String("to", "", "Only list backups created on or before this date (YYYY-MM-DD)")
	backupListCmd.Flags().Bool("json", false, "Output in JSON format")

	backupCmd.AddCommand(backupShowCmd)

	backupCmd.AddCommand(backupDeleteCmd)
	backupDeleteCmd.Flags().Bool("cascade", false, "Also delete incremental backups based on this one")

	backupCmd.AddCommand(backupExportCmd)
	addExportFlags(backupExportCmd)

	backupCmd.AddCommand(backupImportCmd)
	backupImportCmd.Flags().Bool("encrypt", false, "Store the imported backup encrypted")
	backupImportCmd.Flags().Bool("decrypt", false, "The input file is an encrypted container")
	backupImportCmd.Flags().SetNormalizeFunc(normalizeAliases)
	backupImportCmd.Flags().StringP("desc", "d", "", "Free-form description")

	backupCmd.AddCommand(backupCleanCmd)
}
