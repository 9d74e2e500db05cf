// Package config locates, materializes and validates devbox profiles.
//
// # Overview
//
// A profile is a YAML document with metadata, run settings and eight ordered
// sections of entries. The Resolver turns a user-supplied reference into a
// validated engine.Configuration:
//
//   - https:// references are downloaded with the Go HTTP client, falling back to curl
//   - sftp:// references are downloaded over SSH
//   - absolute paths are read as is
//   - bare *.yml / *.yaml names are looked up in <root>/profiles
//   - anything else is relative to the project root
//
// The bytes are always copied to <state-dir>/config.yaml and that copy is what
// gets parsed, so the file on disk matches what ran.
//
// # Validation
//
// Loader decodes with gopkg.in/yaml.v3 and validates struct tags with
// go-playground/validator. Custom unmarshalling decides script references
// (path or inline) and nix block shape at parse time. Duplicate entry names
// within a section are rejected.
//
// # Usage Example
//
//	r := &config.Resolver{
//	    Root:     root,
//	    StateDir: stateDir,
//	    HTTP:     config.NewHTTPFetcher(time.Minute),
//	    Fallback: &config.CurlFetcher{Runner: run},
//	    Logger:   logger,
//	}
//	res, err := r.Resolve(ctx, "default.yaml")
//	if err != nil {
//	    return err // CONFIG_RESOLUTION
//	}
//	plan, err := engine.NewPlanner(nil).Plan(res.Config, sections)
package config
