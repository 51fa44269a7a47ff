package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatkit-ai/chatkit/internal/chat"
	"github.com/chatkit-ai/chatkit/internal/config"
	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/internal/store"
)

var sessionsScope string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored session history",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions for a scope",
	RunE:  runSessionsList,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored sessions for a scope",
	RunE:  runSessionsClear,
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsScope, "scope", "default", "Storage scope (workspace identifier)")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
}

func openOrchestrator(ctx context.Context) (*chat.Orchestrator, error) {
	appConfig, err := config.Load("")
	if err != nil {
		return nil, err
	}

	storagePath := appConfig.StoragePath
	if storagePath == "" {
		storagePath = config.GetPaths().StoragePath()
	}
	st := storage.New(storagePath)

	opts := chat.Options{
		Storage: st,
		Config:  appConfig,
		Scope:   sessionsScope,
	}
	if appConfig.UseFileStorage {
		opts.FileStore = store.New(st, sessionsScope)
	}
	return chat.NewOrchestrator(ctx, opts)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orchestrator, err := openOrchestrator(ctx)
	if err != nil {
		return err
	}

	history, err := orchestrator.GetHistory(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}

	for _, item := range history {
		created := time.UnixMilli(item.CreationDate).Format(time.RFC3339)
		fmt.Printf("%s  %s  %s\n", item.SessionID, created, item.Title)
	}
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orchestrator, err := openOrchestrator(ctx)
	if err != nil {
		return err
	}

	if err := orchestrator.ClearAllHistoryEntries(ctx); err != nil {
		return err
	}
	if err := orchestrator.SaveState(ctx); err != nil {
		return err
	}
	fmt.Printf("cleared sessions for scope %q\n", sessionsScope)
	return nil
}
