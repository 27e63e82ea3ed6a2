package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/spf13/cobra"
)

type launchFlags struct {
	override bool
	params   []string
	detach   bool
}

func (f *launchFlags) register(cmd *cobra.Command, withDetach bool) {
	cmd.Flags().BoolVar(&f.override, "override", false, "Skip the prerequisite stage check")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "Generation parameter as key=value (repeatable)")
	if withDetach {
		cmd.Flags().BoolVarP(&f.detach, "detach", "d", false, "Return after launching; follow later with resume")
	}
}

func (f *launchFlags) options() (client.LaunchOptions, error) {
	opts := client.LaunchOptions{Override: f.override}
	if len(f.params) == 0 {
		return opts, nil
	}
	opts.Params = make(map[string]string, len(f.params))
	for _, kv := range f.params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return opts, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		opts.Params[strings.TrimSpace(k)] = v
	}
	return opts, nil
}

func parseTypeAndDocument(args []string) (domain.TaskType, uuid.UUID, error) {
	taskType, err := domain.ParseTaskType(args[0])
	if err != nil {
		return "", uuid.Nil, err
	}
	docID, err := uuid.Parse(args[1])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid document id %q", args[1])
	}
	return taskType, docID, nil
}

func newLaunchCommand(ctx *commandContext) *cobra.Command {
	var flags launchFlags
	cmd := &cobra.Command{
		Use:   "launch <type> <document-id>",
		Short: "Launch a task and poll it until it finishes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskType, docID, err := parseTypeAndDocument(args)
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(s *session) error {
				h, err := s.launcher.Launch(cmd.Context(), docID, taskType, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "launched %s task %s\n", taskType, h.TaskID)
				if flags.detach {
					s.registry.Cancel(docID)
					return nil
				}
				return s.wait(cmd)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Retry a task that ended in error and poll it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return ctx.withSession(cmd, func(s *session) error {
				h, err := s.launcher.Retry(cmd.Context(), taskID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "retrying %s task %s\n", h.TaskType, h.TaskID)
				if detach {
					s.registry.Cancel(h.DocumentID)
					return nil
				}
				return s.wait(cmd)
			})
		},
	}
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Return after retrying; follow later with resume")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "resume",
		Aliases: []string{"watch"},
		Short:   "Poll every pending task left by earlier invocations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				n, err := s.registry.Resume(cmd.Context())
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending tasks")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "following %d pending task(s)\n", n)
				return s.wait(cmd)
			})
		},
	}
}

func newStreamCommand(ctx *commandContext) *cobra.Command {
	var flags launchFlags
	cmd := &cobra.Command{
		Use:   "stream <summary|script> <document-id>",
		Short: "Run a text generation and print tokens as they arrive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskType, docID, err := parseTypeAndDocument(args)
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}

			stream, err := api.OpenStream(cmd.Context(), docID, taskType, opts)
			if err != nil {
				return err
			}
			defer func() { _ = stream.Close() }()

			out := cmd.OutOrStdout()
			reducer := client.StreamReducer{OnToken: func(tok string) { fmt.Fprint(out, tok) }}
			err = reducer.Consume(stream.Events())
			fmt.Fprintln(out)
			if err != nil {
				return fmt.Errorf("stream for task %s: %w", stream.TaskID, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "task %s complete\n", reducer.TaskID())
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}
