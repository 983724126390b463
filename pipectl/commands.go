package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/catalog"
	"github.com/meikuraledutech/pipegraph/client"
	"github.com/meikuraledutech/pipegraph/config"
	"github.com/meikuraledutech/pipegraph/editor"
	"github.com/meikuraledutech/pipegraph/logging"
)

// env is what every subcommand needs, built once in PersistentPreRunE.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend pipegraph.Backend
	catalog *catalog.Catalog
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		e          env
	)

	root := &cobra.Command{
		Use:           "pipectl",
		Short:         "Edit and publish pipe graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			e.catalog = catalog.Default()

			opts := []client.Option{client.WithTimeout(cfg.Backend.Timeout)}
			if cfg.Backend.Token != "" {
				opts = append(opts, client.WithStaticToken(cfg.Backend.Token, cfg.Backend.TokenType))
			}
			e.backend = client.New(cfg.Backend.BaseURL, opts...)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a pipegraph.yaml file")

	root.AddCommand(
		newGraphCmd(&e),
		newPublishCmd(&e),
		newDeleteCmd(&e),
		newClientsCmd(&e),
		newConnectorsCmd(&e),
	)
	return root
}

func newGraphCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Load the published pipes and print them as a canvas document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := e.session()
			if err := s.Load(cmd.Context()); err != nil {
				return err
			}
			return writeDocument(s, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the document to a file instead of stdout")
	return cmd
}

func newPublishCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a canvas document and write back the assigned pipe ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			s := e.session()
			err = s.Import(f)
			f.Close()
			if err != nil {
				return err
			}

			report, pubErr := s.Publish(cmd.Context())
			if report != nil {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PIPE\tACTION\tERROR")
				for _, p := range report.Paths {
					action := "updated"
					if p.Created {
						action = "created"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", p.PipeID, action, errString(p.Err))
				}
				for _, id := range report.Deleted {
					fmt.Fprintf(w, "%d\tdeleted\t\n", id)
				}
				for id, err := range report.DeleteFailures {
					fmt.Fprintf(w, "%d\tdelete\t%s\n", id, err)
				}
				w.Flush()

				// Keep the ids the backend assigned even when some paths failed.
				if err := writeDocument(s, file, nil); err != nil {
					return err
				}
			}
			return pubErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "canvas document to publish")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pipe-id>",
		Short: "Delete one pipe on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pipe id %q", args[0])
			}
			if err := e.backend.DeletePipe(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipe %d deleted\n", id)
			return nil
		},
	}
}

func newClientsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List registered daemons and the connectors they expose",
		RunE: func(cmd *cobra.Command, _ []string) error {
			daemons, err := e.session().Palette(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSOURCES\tDESTINATIONS")
			for _, d := range daemons {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, stageNames(d.Sources), stageNames(d.Destinations))
			}
			return w.Flush()
		},
	}
}

func newConnectorsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List the connector types the editor knows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tSOURCE\tDESTINATION\tFAN-OUT")
			for _, d := range e.catalog.All() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\n", d.Type, d.DisplayName, d.Source, d.Destination, d.FanOut)
			}
			return w.Flush()
		},
	}
}

func (e *env) session() *editor.Session {
	return editor.NewSession(e.backend, e.catalog, e.cfg.Backend.WorkspaceID, e.logger, nil)
}

// writeDocument exports s to path, or to w when path is empty.
func writeDocument(s *editor.Session, path string, w io.Writer) error {
	if path == "" {
		return s.Export(w)
	}
	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func stageNames(stages []pipegraph.Stage) string {
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name()
	}
	b, _ := json.Marshal(names)
	return string(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
