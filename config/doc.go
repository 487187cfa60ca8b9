// Package config consolidates lazywasm settings from defaults, a YAML file,
// the environment and command-line flags, in that order. Every field is a
// nullable value so a later source only overrides what it actually sets.
package config
