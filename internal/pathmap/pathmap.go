// Package pathmap translates host paths into the encoder's view of the
// filesystem, for setups where the encoder binary runs under a different OS
// root (e.g. a Windows host driving an encoder inside WSL). The core
// pipeline only ever handles already-translated paths.
package pathmap

import "strings"

// Translator rewrites a host path for the encoder process.
type Translator interface {
	ToEncoder(path string) string
}

// Noop passes paths through unchanged. Used when host and encoder share a
// filesystem view.
type Noop struct{}

// ToEncoder returns path unchanged.
func (Noop) ToEncoder(path string) string { return path }

// PrefixMap swaps a host root prefix for an encoder root prefix and
// normalizes separators to forward slashes.
type PrefixMap struct {
	HostRoot    string
	EncoderRoot string
}

// New returns a PrefixMap when both roots are set, otherwise Noop.
func New(hostRoot, encoderRoot string) Translator {
	if hostRoot == "" || encoderRoot == "" {
		return Noop{}
	}
	return PrefixMap{HostRoot: hostRoot, EncoderRoot: encoderRoot}
}

// ToEncoder rewrites path under the encoder root. Paths outside the host
// root are returned with separators normalized only.
func (m PrefixMap) ToEncoder(path string) string {
	normalized := strings.ReplaceAll(path, `\`, "/")
	host := strings.TrimSuffix(strings.ReplaceAll(m.HostRoot, `\`, "/"), "/")
	if !strings.HasPrefix(normalized, host) {
		return normalized
	}
	rest := strings.TrimPrefix(normalized, host)
	return strings.TrimSuffix(m.EncoderRoot, "/") + rest
}
