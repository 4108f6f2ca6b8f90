// Package serverconfig loads greenauthd's YAML configuration with
// GREENAUTH_* environment overrides.
package serverconfig
