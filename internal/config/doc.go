// Package config defines the run settings of pkgrender and provides helpers
// to load, validate and save them in YAML format.
//
// The Config type says where templates live, how targets map to output files
// in the packaging repository and how the source archive is fetched.
package config
