package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/export"
	"github.com/Hunselvm/genai/internal/jobstore"
	"github.com/Hunselvm/genai/internal/storage"
)

type exportFlags struct {
	outDir string
	mirror bool
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.outDir, "out", ".", "directory to write export files to")
	cmd.Flags().BoolVar(&f.mirror, "mirror", false, "also upload export files to the object store")
}

func (a *app) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export results from a stored job",
	}
	cmd.AddCommand(
		a.exportCSVCmd(),
		a.exportFailedCmd(),
		a.exportPipelineCmd(),
		a.exportZipCmd(),
		a.exportXLSXCmd(),
	)
	return cmd
}

func (a *app) exportCSVCmd() *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "csv <job-id>",
		Short: "Write all results as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJob(cmd, args[0], func(ctx context.Context, job *domain.AutomationJob) error {
				content, err := export.BuildResultsCSV(job.Results)
				if err != nil {
					return err
				}
				return a.writeExport(ctx, cmd, flags, job.JobID, job.JobID+"_results.csv", []byte(content))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) exportFailedCmd() *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "failed <job-id>",
		Short: "Write retry-worthy failures as CSV, for feeding back into a new batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJob(cmd, args[0], func(ctx context.Context, job *domain.AutomationJob) error {
				content, err := export.BuildFailedCSV(job.Results)
				if err != nil {
					return err
				}
				return a.writeExport(ctx, cmd, flags, job.JobID, job.JobID+"_failed.csv", []byte(content))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) exportPipelineCmd() *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "pipeline <job-id>",
		Short: "Write per-item image and video outcomes of a pipeline job as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJob(cmd, args[0], func(ctx context.Context, job *domain.AutomationJob) error {
				if job.Mode != domain.ModeBRollPipeline {
					return fmt.Errorf("job %s is a %s job, not a pipeline", job.JobID, job.Mode)
				}
				content, err := export.BuildPipelineCSV(domain.AssemblePipeline(job.Items, job.Results))
				if err != nil {
					return err
				}
				return a.writeExport(ctx, cmd, flags, job.JobID, job.JobID+"_pipeline.csv", []byte(content))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) exportZipCmd() *cobra.Command {
	var flags exportFlags
	var partMB int
	cmd := &cobra.Command{
		Use:   "zip <job-id>",
		Short: "Bundle downloaded artifacts into size-capped ZIP parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJob(cmd, args[0], func(ctx context.Context, job *domain.AutomationJob) error {
				parts, err := export.BuildChunkedArchive(job.Results, job.JobID, partMB)
				if err != nil {
					return err
				}
				if len(parts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no completed artifacts to archive")
					return nil
				}
				for _, part := range parts {
					if err := a.writeExport(ctx, cmd, flags, job.JobID, part.Filename, part.Data); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&partMB, "part-mb", a.cfg.Export.MaxPartMB, "maximum size of one ZIP part in MB")
	return cmd
}

func (a *app) exportXLSXCmd() *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "xlsx <job-id>",
		Short: "Write a result summary workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJob(cmd, args[0], func(ctx context.Context, job *domain.AutomationJob) error {
				data, err := export.BuildXLSXSummary(job.Results)
				if err != nil {
					return err
				}
				return a.writeExport(ctx, cmd, flags, job.JobID, job.JobID+"_summary.xlsx", data)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) withJob(cmd *cobra.Command, jobID string, fn func(context.Context, *domain.AutomationJob) error) error {
	ctx := cmd.Context()
	store, closeStore, err := a.store(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	job, err := store.Load(jobID)
	if err != nil {
		if err == jobstore.ErrJobNotFound {
			return fmt.Errorf("job %s not found", jobID)
		}
		return err
	}
	return fn(ctx, job)
}

func (a *app) writeExport(ctx context.Context, cmd *cobra.Command, flags exportFlags, jobID, filename string, data []byte) error {
	path := filepath.Join(flags.outDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))

	if !flags.mirror && !a.cfg.Storage.Mirror {
		return nil
	}
	client, err := storage.NewClient(storage.Config{
		Endpoint: a.cfg.Storage.Endpoint,
		Access:   a.cfg.Storage.AccessKey,
		Secret:   a.cfg.Storage.SecretKey,
		Bucket:   a.cfg.Storage.Bucket,
		UseSSL:   a.cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}
	objectKey, err := client.UploadExport(ctx, jobID, filename, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mirrored to %s/%s\n", client.Bucket(), objectKey)
	return nil
}
