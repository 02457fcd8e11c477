// Package commands defines the maskid CLI and wires dependencies for subcommands.
//
// Commands
//
//   - persona create|recover|import-jwk   Create personas from a new mnemonic, recovered words or JWKs
//   - persona list|show                   Inspect personas
//   - persona rename|login|logout|setup   Change persona state
//   - persona delete                      Delete a persona, safely by default
//   - profile show|list|whoami            Inspect profiles and their linked persona
//   - profile link|unlink|avatar          Manage profile links and cached avatars
//   - key local|public                    Print a persona or profile key as a JWK
//   - backup export|import                Passphrase-sealed backups
//
// # Implementation
//
// The root command resolves configuration and builds the dependency graph
// (store, avatar cache, services) before any subcommand runs, and closes it
// afterwards. Identifiers are accepted in their text form; profiles may omit
// the "person:" prefix.
package commands
