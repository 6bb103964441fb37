package main

import (
	"fmt"
	"io"
)

// banner prints the startup banner with the effective gate settings.
func banner(w io.Writer, cfg *Config) {
	fmt.Fprintln(w, "+----------------------------------------------+")
	fmt.Fprintf(w, "|  authgate %-10s premium login gate       |\n", Version)
	fmt.Fprintln(w, "+----------------------------------------------+")
	fmt.Fprintf(w, "  Listen:          %s\n", cfg.Listen)
	fmt.Fprintf(w, "  Pending policy:  %s\n", cfg.Auth.PendingPolicy)
	fmt.Fprintf(w, "  Resolver bound:  %s\n", cfg.Auth.ResolveTimeout())
	fmt.Fprintf(w, "  Verifier bound:  %s\n", cfg.Auth.VerifyTimeout())
	fmt.Fprintf(w, "  Limbo:           %v\n", cfg.Limbo.Enabled)
	fmt.Fprintln(w)
}
