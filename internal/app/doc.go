// Package app wires application dependencies for the CLI.
//
// It resolves Config from defaults, an optional config.yaml and .env in the
// home directory, and MASKID_* environment variables, then builds the
// concrete stores, avatar cache and services into a Wire for commands to use.
package app
