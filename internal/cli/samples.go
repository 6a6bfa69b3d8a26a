package cli

import (
	"github.com/spf13/cobra"

	"github.com/mickamy/relmodel/samples"
)

func newOneToOneCmd(opts *options) *cobra.Command {
	var (
		principal string
		required  bool
	)
	cmd := &cobra.Command{
		Use:   "onetoone",
		Short: "Walk the student/address one-to-one sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := samples.ParsePrincipal(principal)
			if err != nil {
				return wrapError("", err, "Use --principal student or --principal address.", 2)
			}
			st, closeDB, err := opts.openStore(samples.OneToOneModel(p, required))
			if err != nil {
				return err
			}
			defer closeDB()
			steps, err := samples.RunOneToOne(cmd.Context(), st, cmd.OutOrStdout(), p, required)
			return opts.report("onetoone", steps, err)
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "student", "principal side: student or address")
	cmd.Flags().BoolVar(&required, "required", false, "make the relationship required")
	return cmd
}

func newOneToManyCmd(opts *options) *cobra.Command {
	var required bool
	cmd := &cobra.Command{
		Use:   "onetomany",
		Short: "Walk the blog/post one-to-many sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeDB, err := opts.openStore(samples.OneToManyModel(required))
			if err != nil {
				return err
			}
			defer closeDB()
			steps, err := samples.RunOneToMany(cmd.Context(), st, cmd.OutOrStdout(), required)
			return opts.report("onetomany", steps, err)
		},
	}
	cmd.Flags().BoolVar(&required, "required", false, "make the relationship required")
	return cmd
}

func newManyToManyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "manytomany",
		Short: "Walk the book/author many-to-many sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeDB, err := opts.openStore(samples.ManyToManyModel())
			if err != nil {
				return err
			}
			defer closeDB()
			steps, err := samples.RunManyToMany(cmd.Context(), st, cmd.OutOrStdout())
			return opts.report("manytomany", steps, err)
		},
	}
}

// report logs the walkthrough outcome. Failed steps are part of the
// samples and do not fail the command.
func (o *options) report(sample string, steps []samples.Step, err error) error {
	if err != nil {
		return wrapError("", err, "Check that the database is reachable.", 1)
	}
	failed := 0
	for _, s := range steps {
		if s.Err != nil {
			failed++
			o.logger.Debug("step failed", "sample", sample, "section", s.Section, "step", s.Name, "err", s.Err)
		}
	}
	o.logger.Info("walkthrough finished", "sample", sample, "steps", len(steps), "failed", failed)
	return nil
}
