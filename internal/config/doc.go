// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

/*
Package config loads deployctl configuration.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:
 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: the --config flag, DEPLOYCTL_CONFIG, ./deployctl.yaml
    or /etc/recdeploy/deployctl.yaml, first match wins
 3. DEPLOYCTL_* environment variables, mapped explicitly in envTransformFunc

Unknown environment variables are ignored.

# Example File

	project:
	  name: Product Recommender
	paths:
	  backup_root: /var/lib/recdeploy/backups
	  artifact_dir: ./model_artifacts
	  results_dir: ./training_results
	  training_artifact_dir: ./training_output/model_artifacts
	  training_results_dir: ./training_output/training_results
	hosting:
	  base_url: https://hosting.example.com/v1
	  compute:
	    shape: VM.Standard.E4.Flex
	    ocpus: 1
	    memory_gb: 16
	promotion:
	  initial_delay: 90s
	  timeout: 10m
	events:
	  backend: nats
	  nats_url: nats://127.0.0.1:4222

# Environment Variables

Hosting:
  - DEPLOYCTL_HOSTING_URL: hosting gateway base URL
  - DEPLOYCTL_HOSTING_TOKEN: bearer token
  - DEPLOYCTL_HOSTING_TIMEOUT: per-request timeout (default: 60s)

Paths and state:
  - DEPLOYCTL_BACKUP_ROOT, DEPLOYCTL_ARTIFACT_DIR, DEPLOYCTL_RESULTS_DIR
  - DEPLOYCTL_TRAINING_ARTIFACT_DIR, DEPLOYCTL_TRAINING_RESULTS_DIR: training output staged by default
  - DEPLOYCTL_STATE_BACKEND: file or badger (default: file)

Promotion:
  - DEPLOYCTL_VERIFY_INITIAL_DELAY (default: 90s)
  - DEPLOYCTL_VERIFY_TIMEOUT (default: 10m)

See envTransformFunc for the complete list.

# Validation

Validate runs the validator/v10 struct tags first, then the cross-field checks
that tags cannot express.
*/
package config
