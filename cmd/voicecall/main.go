// Voicecall — CLI entry point.
//
// This tool places and receives real-time audio calls between two
// authenticated users, identified by email address. Signaling runs over a
// persistent WebSocket to the server; media flows peer-to-peer over WebRTC.
//
// It can be launched interactively (no flags) or partially non-interactively
// via CLI flags (-api, -ws, -email).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/allcallall/voicecall/internal/app"
	"github.com/allcallall/voicecall/internal/config"
	"github.com/allcallall/voicecall/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()

	// CLI flags.
	apiFlag := flag.String("api", cfg.APIBaseURL, "REST API base URL")
	wsFlag := flag.String("ws", cfg.WSURL, "Signaling WebSocket URL")
	emailFlag := flag.String("email", "", "Account email (prompted if omitted)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}
	cfg.APIBaseURL = strings.TrimRight(*apiFlag, "/")
	cfg.WSURL = *wsFlag

	pterm.Info.Println(fmt.Sprintf("Voicecall — v%s", version))
	pterm.Println()

	email := strings.TrimSpace(*emailFlag)
	if email == "" {
		email = askText("Account email")
	}
	password := askPassword()

	if err := app.Run(ctx, cfg, email, password); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("goodbye")
}

// askText prompts until a non-empty value is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
		util.LogWarning("a value is required")
	}
}

// askPassword prompts for the account password with masked input.
func askPassword() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Password").
			WithMask("*").
			Show()
		if raw != "" {
			pterm.Println()
			return raw
		}
		util.LogWarning("a password is required")
	}
}
