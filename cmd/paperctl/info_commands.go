package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <text-file>",
		Short: "Create a document from a local text file and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			id, err := api.CreateDocument(cmd.Context(), filepath.Base(args[0]), string(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			st, err := api.Status(cmd.Context(), api.StatusURL(taskID))
			if err != nil {
				return err
			}

			rows := [][]string{
				{"task", st.TaskID.String()},
				{"document", st.DocumentID.String()},
				{"type", string(st.TaskType)},
				{"status", string(st.Status)},
				{"attempts", strconv.Itoa(st.Attempts)},
				{"updated", formatTime(st.UpdatedAt)},
			}
			if st.Result != nil && st.Result.Message != "" {
				rows = append(rows, []string{"message", st.Result.Message})
			}
			if st.Result != nil && st.Result.Artifact != "" {
				rows = append(rows, []string{"artifact", st.Result.Artifact})
			}
			writeTable(cmd.OutOrStdout(), nil, rows, nil)
			return nil
		},
	}
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <document-id>",
		Short: "List every task recorded for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			tasks, err := api.DocumentTasks(cmd.Context(), docID)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
				return nil
			}

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{
					t.TaskID.String(), string(t.TaskType), string(t.Status),
					strconv.Itoa(t.Attempts), t.Message(), formatTime(t.UpdatedAt),
				})
			}
			writeTable(cmd.OutOrStdout(),
				[]string{"Task", "Type", "Status", "Attempts", "Message", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
			return nil
		},
	}
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List tasks this client is still waiting on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				handles, err := s.store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(handles) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending tasks")
					return nil
				}

				rows := make([][]string, 0, len(handles))
				for _, h := range handles {
					rows = append(rows, []string{
						h.DocumentID.String(), string(h.TaskType), h.TaskID.String(), formatTime(h.CreatedAt),
					})
				}
				writeTable(cmd.OutOrStdout(), []string{"Document", "Type", "Task", "Launched"}, rows, nil)
				return nil
			})
		},
	}
}
