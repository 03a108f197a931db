package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/excelsql/internal/archive"
	"github.com/JonMunkholm/excelsql/internal/converter"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

type inputOptions struct {
	master   string
	employee string
}

func (o *inputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.master, "master", "", "Master data workbook, .xlsx or .xls (required)")
	cmd.Flags().StringVar(&o.employee, "employee", "", "Employee details workbook, .xlsx or .xls (required)")
	_ = cmd.MarkFlagRequired("master")
	_ = cmd.MarkFlagRequired("employee")
}

type runOptions struct {
	inputOptions

	tenantID       int64
	operatedBy     int64
	startingUID    int64
	skipValidation bool
	validateFirst  bool
	outDir         string
	noArchive      bool
}

func newRunCmd(g *globals) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate SQL from the two workbooks and download it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, g, opts)
		},
	}

	opts.bind(cmd)
	cmd.Flags().Int64Var(&opts.tenantID, "tenant-id", 0, "Tenant ID (default: DEFAULT_TENANT_ID)")
	cmd.Flags().Int64Var(&opts.operatedBy, "operated-by", 0, "Operator user ID (default: DEFAULT_OPERATED_BY_UID)")
	cmd.Flags().Int64Var(&opts.startingUID, "starting-uid", 0, "First user ID to assign (default: DEFAULT_STARTING_UID)")
	cmd.Flags().BoolVar(&opts.skipValidation, "skip-validation", false, "Ask the service to skip its own validation")
	cmd.Flags().BoolVar(&opts.validateFirst, "validate-first", false, "Run a validation and stop if it reports errors")
	cmd.Flags().StringVar(&opts.outDir, "out", ".", "Directory the SQL file is written to")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "Do not copy the artifact to the configured archive")

	return cmd
}

func newValidateCmd(g *globals) *cobra.Command {
	var opts inputOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the two workbooks without generating SQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := prepare(g, opts)
			if err != nil {
				return err
			}
			return validate(cmd, g, wf)
		},
	}
	opts.bind(cmd)
	return cmd
}

// prepare builds a workflow and selects both workbooks.
func prepare(g *globals, in inputOptions) (*workflow.Workflow, error) {
	defaults := workflow.Configuration{
		TenantID:      g.cfg.Defaults.TenantID,
		OperatedByUID: g.cfg.Defaults.OperatedByUID,
		StartingUID:   g.cfg.Defaults.StartingUID,
	}
	wf := workflow.New(workflow.Options{
		Service:  converter.New(g.cfg.Converter.BaseURL, g.cfg.Converter.Timeout),
		Defaults: &defaults,
		Logger:   g.logger,
	})

	for _, f := range []struct {
		slot workflow.Slot
		path string
	}{
		{workflow.SlotMaster, in.master},
		{workflow.SlotEmployee, in.employee},
	} {
		content, err := os.ReadFile(f.path)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("read %s file: %w", f.slot, err))
		}
		if err := wf.Select(f.slot, filepath.Base(f.path), content); err != nil {
			return nil, withCode(exitUsage, userError(err))
		}
		g.logger.Debug("file selected", "slot", f.slot, "path", f.path, "size", len(content))
	}
	return wf, nil
}

func validate(cmd *cobra.Command, g *globals, wf *workflow.Workflow) error {
	if err := wf.Validate(cmd.Context()); err != nil {
		return withCode(exitFailure, userError(err))
	}
	v := wf.View()
	if err := printView(cmd.OutOrStdout(), v, g.jsonOutput); err != nil {
		return err
	}
	if !v.CanProceed {
		return withCode(exitBlocked, fmt.Errorf("validation reported errors"))
	}
	return nil
}

func runGenerate(cmd *cobra.Command, g *globals, opts runOptions) error {
	ctx := cmd.Context()

	wf, err := prepare(g, opts.inputOptions)
	if err != nil {
		return err
	}

	cfg := wf.State().Config
	if cmd.Flags().Changed("tenant-id") {
		cfg.TenantID = opts.tenantID
	}
	if cmd.Flags().Changed("operated-by") {
		cfg.OperatedByUID = opts.operatedBy
	}
	if cmd.Flags().Changed("starting-uid") {
		cfg.StartingUID = opts.startingUID
	}
	if err := wf.SetConfig(cfg); err != nil {
		return withCode(exitUsage, userError(err))
	}

	if opts.validateFirst {
		if err := validate(cmd, g, wf); err != nil {
			return err
		}
	}

	if err := wf.Generate(ctx, opts.skipValidation); err != nil {
		return withCode(exitFailure, userError(err))
	}

	v := wf.View()
	if v.Mode == workflow.ModeGenerationFailed {
		if err := printView(cmd.OutOrStdout(), v, g.jsonOutput); err != nil {
			return err
		}
		if v.CanShowDetails && wf.ShowValidationDetails() == nil {
			if err := printView(cmd.OutOrStdout(), wf.View(), g.jsonOutput); err != nil {
				return err
			}
		}
		return withCode(exitBlocked, fmt.Errorf("generation failed"))
	}

	sink, err := artifactSink(g, opts, cfg)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if err := wf.Download(ctx, v.Artifact, sink); err != nil {
		return withCode(exitFailure, userError(err))
	}

	if err := printView(cmd.OutOrStdout(), wf.View(), g.jsonOutput); err != nil {
		return err
	}
	if !g.jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", filepath.Join(opts.outDir, v.Artifact))
	}
	return nil
}

// artifactSink writes into the output directory and mirrors to the archive
// when one is configured.
func artifactSink(g *globals, opts runOptions, cfg workflow.Configuration) (workflow.Sink, error) {
	dir := workflow.DirSink{Dir: opts.outDir}
	if opts.noArchive || !g.cfg.Archive.Enabled() {
		return dir, nil
	}

	a, err := archive.New(archive.Config{
		Endpoint:  g.cfg.Archive.Endpoint,
		Region:    g.cfg.Archive.Region,
		AccessKey: g.cfg.Archive.AccessKey,
		SecretKey: g.cfg.Archive.SecretKey,
		Bucket:    g.cfg.Archive.Bucket,
		Prefix:    g.cfg.Archive.Prefix,
		UseSSL:    g.cfg.Archive.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return workflow.TeeSink{
		Primary: dir,
		Mirrors: []workflow.Sink{a.WithPrefix(fmt.Sprintf("tenant-%d", cfg.TenantID))},
		OnMirrorError: func(name string, err error) {
			g.logger.Warn("archive copy failed", "filename", name, "error", err)
		},
	}, nil
}

// userError prefixes err with its user-facing message unless they coincide.
func userError(err error) error {
	msg := workflow.MapError(err).Message
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
