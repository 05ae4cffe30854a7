// Package config provides the configuration object for a boardlake run.
//
// A single Config value carries everything the extraction pipeline needs:
// the upstream endpoint and credential reference, the partition (board) list,
// the destination prefix, page size, retry cap and the overall run deadline.
//
// # Sources
//
// Configuration is resolved with viper in the following precedence order:
//
//  1. command line flags bound by the CLI
//  2. BOARDLAKE_* environment variables (nested keys joined with "_",
//     e.g. BOARDLAKE_EXTRACTION_PAGE_SIZE)
//  3. the YAML config file, after ${VAR_NAME} substitution
//  4. defaults from Default()
//
// # Usage
//
//	v := viper.New()
//	cfg, err := config.LoadWith(v, "boardlake.yaml")
//	if err != nil {
//		return err
//	}
//	token, err := cfg.Upstream.ResolveCredential()
//
// # Credential references
//
// Upstream.CredentialRef is a reference, not a secret store:
//   - "env:NAME" reads the environment variable NAME
//   - "file:/path/to/token" reads and trims the file
//   - anything else is used literally
package config
