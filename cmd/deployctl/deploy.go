// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/recdeploy/internal/deploy"
	"github.com/tomtom215/recdeploy/internal/hosting"
)

func newStageCmd(opts *rootOptions) *cobra.Command {
	var (
		artifactDir string
		resultsDir  string
		numUsers    int
		numProducts int
		shape       string
		ocpus       int
		memoryGB    int
	)

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Deploy a trained model as the test deployment",
		Long: `Save the trained model artifact to the hosting service and create a test
deployment serving it. The test is recorded as version current+1.

The training output is copied aside and installed into the live artifact and
results directories only when the version is promoted. It must not be the live
directories themselves. The live directories are backed up first unless
promotion.backup_before_stage is disabled. Only one test deployment may be
staged at a time; promote it or run cleanup-test before staging another.

Examples:
  deployctl stage --users 12500 --products 840
  deployctl stage --artifact-dir ./training_output/model_artifacts --ocpus 2 --memory-gb 32`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // state is saved by the orchestrator

			req := deploy.StageRequest{
				ArtifactDir: artifactDir,
				ResultsDir:  resultsDir,
				NumUsers:    numUsers,
				NumProducts: numProducts,
			}
			if req.ArtifactDir == "" {
				req.ArtifactDir = opts.cfg.Paths.TrainingArtifactDir
			}
			if req.ResultsDir == "" {
				req.ResultsDir = opts.cfg.Paths.TrainingResultsDir
			}
			if cmd.Flags().Changed("shape") || cmd.Flags().Changed("ocpus") || cmd.Flags().Changed("memory-gb") {
				compute := hosting.ComputeConfig{
					Shape:    opts.cfg.Hosting.Compute.Shape,
					OCPUs:    opts.cfg.Hosting.Compute.OCPUs,
					MemoryGB: opts.cfg.Hosting.Compute.MemoryGB,
				}
				if shape != "" {
					compute.Shape = shape
				}
				if ocpus > 0 {
					compute.OCPUs = ocpus
				}
				if memoryGB > 0 {
					compute.MemoryGB = memoryGB
				}
				req.Compute = &compute
			}

			rec, err := a.orch.StageTest(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, rec)
			}
			printRecord(out, "Staged TEST", rec)
			fmt.Fprintln(out, "\nTest the endpoint, then run: deployctl promote")
			return nil
		},
	}

	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "Trained model directory (default: paths.training_artifact_dir)")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Training results directory (default: paths.training_results_dir)")
	cmd.Flags().IntVar(&numUsers, "users", 0, "Number of users the model was trained on")
	cmd.Flags().IntVar(&numProducts, "products", 0, "Number of products the model was trained on")
	cmd.Flags().StringVar(&shape, "shape", "", "Override the compute shape")
	cmd.Flags().IntVar(&ocpus, "ocpus", 0, "Override the OCPU count")
	cmd.Flags().IntVar(&memoryGB, "memory-gb", 0, "Override the memory in GB")
	return cmd
}

func newPromoteCmd(opts *rootOptions) *cobra.Command {
	var expectID string

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote the test deployment to production",
		Long: `Make the staged test model the production model.

On first run the test deployment simply becomes production. Afterwards the
production deployment is updated in place to serve the test model, so its
endpoint never changes. The swap is read back until it is confirmed or
promotion.timeout elapses. If it cannot be confirmed, nothing is recorded
and the test deployment is kept.

Examples:
  deployctl promote
  deployctl promote --expect-test-id ocid1.deployment.oc1..abc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // state is saved by the orchestrator

			res, err := a.orch.Promote(cmd.Context(), deploy.PromoteOptions{ExpectedTestDeploymentID: expectID})
			if err != nil {
				var perr *deploy.PromotionError
				if errors.As(err, &perr) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Promotion aborted during %s after %d read(s); production still serves %s.\n",
						perr.Stage, perr.Attempts, actualOrUnknown(perr.ActualModelID))
					fmt.Fprintln(cmd.ErrOrStderr(), "State is unchanged. Fix the cause and run promote again, or run cleanup-test.")
				}
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, res)
			}
			printRecord(out, "PRODUCTION", res.Production)
			if res.Replaced != nil {
				fmt.Fprintf(out, "\nReplaced v%d (model %s)\n", res.Replaced.Version, res.Replaced.ModelID)
			}
			if res.InPlace {
				fmt.Fprintf(out, "Swap verified after %d read(s)\n", res.VerifyAttempts)
			}
			printWarnings(out, res.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&expectID, "expect-test-id", "", "Refuse to promote unless the staged test has this deployment id")
	return cmd
}

func actualOrUnknown(modelID string) string {
	if modelID == "" {
		return "an unknown model"
	}
	return modelID
}

func newCleanupTestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-test",
		Short: "Delete the test deployment",
		Long: `Delete the staged test deployment and clear the test slot. Production is
never touched. Running it with no test staged does nothing.

Example:
  deployctl cleanup-test`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // state is saved by the orchestrator

			res, err := a.orch.CleanupTest(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, res)
			}
			if res.Removed == nil {
				fmt.Fprintln(out, "No test deployment to clean up")
				return nil
			}
			fmt.Fprintf(out, "Removed test v%d (%s)\n", res.Removed.Version, res.Removed.DeploymentID)
			printWarnings(out, res.Warnings)
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var req deploy.ImportRequest

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Record an existing deployment as production",
		Long: `Record a production deployment created outside deployctl, so the next
staged model gets the following version number.

Examples:
  deployctl import --deployment-id ocid1.deployment.oc1..xyz \
    --model-id ocid1.model.oc1..abc \
    --endpoint https://hosting.example.com/deployments/xyz/predict \
    --version 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // state is saved by the orchestrator

			rec, err := a.orch.ImportExisting(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, rec)
			}
			printRecord(out, "Imported PRODUCTION", rec)
			fmt.Fprintf(out, "\nNext staged model will be v%d\n", rec.Version+1)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DeploymentID, "deployment-id", "", "Existing deployment id (required)")
	cmd.Flags().StringVar(&req.ModelID, "model-id", "", "Model id the deployment serves (required)")
	cmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "Prediction endpoint URL (required)")
	cmd.Flags().IntVar(&req.Version, "version", 1, "Version number of the deployed model")
	cmd.Flags().StringVar(&req.Description, "description", "", "Description to record")
	cmd.Flags().BoolVar(&req.Overwrite, "overwrite", false, "Replace an already recorded production deployment")
	return cmd
}
