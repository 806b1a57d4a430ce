package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	backupPassphrase  string
	restorePassphrase string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Encrypt the meal collection and upload it to S3",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		record, err := a.backup.RunNow(cmd.Context(), backupPassphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", record.S3Key, record.SizeBytes)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the meal collection with a backup from S3",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.backup.Restore(cmd.Context(), args[0], restorePassphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %d meals from %s\n", n, args[0])
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupPassphrase, "passphrase", "", "encryption passphrase (defaults to MEALPLAN_BACKUP_PASSPHRASE)")
	restoreCmd.Flags().StringVar(&restorePassphrase, "passphrase", "", "decryption passphrase (defaults to MEALPLAN_BACKUP_PASSPHRASE)")
}
