package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg, err := setupLogger(cfg, false)
		if err != nil {
			return err
		}
		defer lg.Close()

		st, _ := openStore(cfg)
		sessions, err := st.List(context.Background())
		if err != nil {
			return err
		}

		for _, session := range sessions {
			obj, ok := session.(map[string]any)
			if !ok {
				continue
			}
			id, _ := obj["id"].(string)
			title, _ := obj["title"].(string)
			when := ""
			if ts, ok := obj["timestamp"].(float64); ok && ts > 0 {
				when = time.UnixMilli(int64(ts)).Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, when, title)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg, err := setupLogger(cfg, false)
		if err != nil {
			return err
		}
		defer lg.Close()

		st, _ := openStore(cfg)
		record, err := st.Load(context.Background(), args[0])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Save a session from a JSON file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg, err := setupLogger(cfg, false)
		if err != nil {
			return err
		}
		defer lg.Close()

		var data []byte
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}

		var session any
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("invalid JSON input: %w", err)
		}

		st, _ := openStore(cfg)
		id, err := st.Save(context.Background(), session)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg, err := setupLogger(cfg, false)
		if err != nil {
			return err
		}
		defer lg.Close()

		st, _ := openStore(cfg)
		if err := st.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(deleteCmd)
}
