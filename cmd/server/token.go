package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var insecurePrintToken = flag.Bool("insecure-print-token", false, "print the sidecar token secret to stdout after a confirmation prompt (debug only)")

// maybePrintMasterToken honors -insecure-print-token: it reads a yes/no
// confirmation from the controlling terminal without echoing keystrokes
// (so the confirmation itself never lands in shell history or a screen
// recording alongside the secret it gates), then prints cfg's sidecar
// token secret. A narrow operator debug aid, never wired into any
// request path.
func maybePrintMasterToken(logger zerolog.Logger, tokenSecret string) {
	if !*insecurePrintToken {
		return
	}
	if tokenSecret == "" {
		logger.Warn().Msg("-insecure-print-token set but no sidecar token secret is configured")
		return
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Warn().Msg("-insecure-print-token requires an interactive terminal; ignoring")
		return
	}

	fmt.Fprint(os.Stderr, "type 'yes' to print the sidecar token secret: ")
	answer, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read confirmation")
		return
	}
	if strings.TrimSpace(string(answer)) != "yes" {
		logger.Info().Msg("token print cancelled")
		return
	}
	fmt.Println(tokenSecret)
}
