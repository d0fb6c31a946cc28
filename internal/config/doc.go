// Package config loads the aibankd start-up configuration from a YAML or JSON
// file and the process environment. It is read once in main; no other package
// consults the environment.
package config
