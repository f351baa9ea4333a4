package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aixgo-dev/agentkit"
	"github.com/aixgo-dev/agentkit/agent"
	"github.com/aixgo-dev/agentkit/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "agenthost",
		Short:        "Run and inspect agent hosts",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv(configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", getEnv("CONFIG_FILE", "config/agents.yaml"), "Host configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the host and block until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				log.Printf("Starting agent host v%s", Version)
				return agentkit.Run(cmd.Context(), configFile)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check a configuration file without starting agents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadConfig(configFile)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", configFile, cfg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "types",
			Short: "List the registered agent types",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, t := range agent.Types() {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
			},
		},
		newEncodeCmd(),
	)
	return root
}

// newEncodeCmd builds a task message from its argument, or validates a
// message document read from stdin when the argument is "-", and prints
// the canonical encoding.
func newEncodeCmd() *cobra.Command {
	var (
		taskID   string
		metadata map[string]string
	)
	cmd := &cobra.Command{
		Use:   "encode <content|->",
		Short: "Print the canonical encoding of a task or message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msg agent.Message
			if args[0] == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read message: %w", err)
				}
				msg, err = agent.UnmarshalMessage(data)
				if err != nil {
					return err
				}
			} else {
				task := agent.NewTask(args[0])
				if taskID != "" {
					task.ID = taskID
				}
				for k, v := range metadata {
					task.Metadata[k] = v
				}
				if err := task.Validate(); err != nil {
					return err
				}
				msg = task
			}

			out, err := agent.MarshalMessage(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "id", "", "Task id (generated when empty)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Task metadata as key=value pairs")
	return cmd
}

// loadDotEnv loads .env from the working directory and from the config
// file's directory. Variables already set in the environment win.
func loadDotEnv(configFile string) error {
	paths := []string{".env"}
	if configFile != "" {
		paths = append(paths, filepath.Join(filepath.Dir(configFile), ".env"))
	}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
