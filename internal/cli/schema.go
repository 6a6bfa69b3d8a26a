package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/relmodel/samples"
	"github.com/mickamy/relmodel/sqlstore"
	"github.com/mickamy/relmodel/store"
)

type schemaFlags struct {
	sample    string
	principal string
	required  bool
}

func (f *schemaFlags) model() (*store.Model, error) {
	p, err := samples.ParsePrincipal(f.principal)
	if err != nil {
		return nil, wrapError("", err, "Use --principal student or --principal address.", 2)
	}
	return sampleModel(f.sample, p, f.required)
}

func (f *schemaFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sample, "sample", "", "sample model: onetoone, onetomany or manytomany")
	cmd.Flags().StringVar(&f.principal, "principal", "student", "onetoone principal side: student or address")
	cmd.Flags().BoolVar(&f.required, "required", false, "make the relationship required")
	_ = cmd.MarkFlagRequired("sample")
}

func newSchemaCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the tables of a sample model",
	}
	cmd.AddCommand(newSchemaShowCmd(opts))
	cmd.AddCommand(newSchemaApplyCmd(opts, "create", "Create the tables of a sample model"))
	cmd.AddCommand(newSchemaApplyCmd(opts, "drop", "Drop the tables of a sample model"))
	return cmd
}

func newSchemaShowCmd(opts *options) *cobra.Command {
	var f schemaFlags
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the CREATE TABLE statements of a sample model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := f.model()
			if err != nil {
				return err
			}
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			stmts, err := sqlstore.Schema(m, db.Dialect())
			if err != nil {
				return wrapError("", err, "", 1)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(stmts, ";\n\n")+";")
			return err //nolint:wrapcheck // pass through
		},
	}
	f.bind(cmd)
	return cmd
}

func newSchemaApplyCmd(opts *options, action, short string) *cobra.Command {
	var f schemaFlags
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := f.model()
			if err != nil {
				return err
			}
			st, closeDB, err := opts.openStore(m)
			if err != nil {
				return err
			}
			defer closeDB()
			if action == "create" {
				err = st.EnsureCreated(cmd.Context())
			} else {
				err = st.EnsureDeleted(cmd.Context())
			}
			if err != nil {
				return wrapError(fmt.Sprintf("schema %s: %v", action, err), err, "", 1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s: %s done\n", action, f.sample)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}
