// Package config loads protrieve settings from an optional configuration
// file and PROTRIEVE_* environment variables.
//
// Keys are nested by section. The environment variable for a key is its
// path upper-cased with dots replaced by underscores, so ann.trees is read
// from PROTRIEVE_ANN_TREES.
package config
