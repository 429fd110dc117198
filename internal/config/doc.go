// Package config holds poolsocks runtime settings and their TOML file form.
//
// On first run Load writes a default file and returns ErrCreated so the
// operator can fill in backend endpoints and the shared secret before the
// relay starts.
package config
