package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/snowsentry/snowsentry/internal/adapter/mcp"
	"github.com/snowsentry/snowsentry/internal/core/domain"
	"github.com/spf13/cobra"
)

func newListCmd(flags *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checks in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(flags)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND")
			for _, info := range cat.List() {
				fmt.Fprintf(w, "%s\t%s\n", info.Name, info.Kind)
			}
			return w.Flush()
		},
	}
}

func newShowCmd(flags *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "show <check>",
		Short: "Print the SQL text of a check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(flags)
			if err != nil {
				return err
			}

			text, err := cat.Text(args[0])
			if errors.Is(err, domain.ErrNoTextForm) {
				return fmt.Errorf("%s has no SQL text form; use 'run' to execute it", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newRunCmd(flags *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "run <check>",
		Short: "Execute a check and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := setup(ctx, flags, cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			rows, err := a.audit.Run(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func newRegisterCmd(flags *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "register <check>",
		Short: "Register a check as a stored procedure and invoke it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := setup(ctx, flags, cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			rows, err := a.audit.Register(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func newServeCmd(flags *flagValues) *cobra.Command {
	var (
		transport   string
		httpAddr    string
		bearerToken string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the check catalog as MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != "stdio" && transport != "http" {
				return fmt.Errorf("invalid --transport %q: must be stdio or http", transport)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := setup(ctx, flags, cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			mcpServer := mcp.NewServer(version, a.audit, a.logger, a.tracer, a.inst)

			if transport == "http" {
				if err := serveHTTP(ctx, mcpServer, httpAddr, bearerToken, a.logger); err != nil {
					return err
				}
			} else {
				stdioServer := mcpserver.NewStdioServer(mcpServer)

				a.logger.Info("serving MCP over stdio", slog.String("version", version))
				if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
					return fmt.Errorf("stdio server: %w", err)
				}
			}

			a.logger.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio or http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "listen address for the http transport")
	cmd.Flags().StringVar(&bearerToken, "http-bearer-token", "", "bearer token required on /mcp (http transport)")

	return cmd
}
