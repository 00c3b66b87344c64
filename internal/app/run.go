// Package app orchestrates the full client lifecycle — from login to an
// interactive call loop. All REST, WebSocket, and WebRTC details are
// internal; main only parses flags and hands over a Config.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/allcallall/voicecall/internal/api"
	"github.com/allcallall/voicecall/internal/call"
	"github.com/allcallall/voicecall/internal/config"
	"github.com/allcallall/voicecall/internal/media"
	"github.com/allcallall/voicecall/internal/signal"
	"github.com/allcallall/voicecall/internal/util"
)

// authState is the read-only identity boundary handed to the call engine.
type authState struct {
	mu    sync.Mutex
	email string
	token string
}

func (a *authState) UserEmail() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.email
}

func (a *authState) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *authState) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.email = ""
	a.token = ""
}

// Run executes the full client lifecycle:
//  1. Authenticate against the REST API
//  2. Build the media stack (capture backend + coordinator)
//  3. Open the persistent signaling channel
//  4. Start the call engine on the channel's event stream
//  5. Serve the interactive command loop until quit or ctx cancellation
func Run(ctx context.Context, cfg config.Config, email, password string) error {
	// ── 1. Authenticate ────────────────────────────────────────────────
	rest := api.New(cfg.APIBaseURL, cfg.RequestTimeout)
	authResp, err := rest.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	rest = rest.WithToken(authResp.AccessToken)
	ident := &authState{email: authResp.User.Email, token: authResp.AccessToken}
	util.LogInfo("logged in as %s <%s>", authResp.User.DisplayName, authResp.User.Email)

	// ── 2. Media stack ─────────────────────────────────────────────────
	capture, err := media.NewCapture()
	if err != nil {
		return fmt.Errorf("init capture backend: %w", err)
	}
	coordinator := media.NewCoordinator(cfg.STUNServers, capture)

	// ── 3. Signaling channel ───────────────────────────────────────────
	client := signal.New(signal.Options{
		URL:            cfg.WSURL,
		Token:          authResp.AccessToken,
		ReconnectDelay: cfg.ReconnectDelay,
		QueueCap:       cfg.OutboundQueue,
	})

	// ── 4. Call engine ─────────────────────────────────────────────────
	engine := call.NewEngine(call.EngineConfig{
		Sender: client,
		Media:  coordinator,
		Gate:   media.StaticGate(true),
		Auth:   ident,
		Notify: func(title, detail string) {
			pterm.Println()
			pterm.Info.Printfln("%s — %s", title, detail)
		},
		OnStatus: func(s call.Status) {
			util.LogDebug("call status: %s", s)
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go engine.Run(runCtx, client.Events())
	client.Connect()
	defer func() {
		ident.clear()
		engine.HandleAuthRevoked()
		client.Disconnect()
	}()

	util.StartStatsReporter(runCtx)

	// ── 5. Command loop ────────────────────────────────────────────────
	return commandLoop(runCtx, rest, engine)
}

func commandLoop(ctx context.Context, rest *api.Client, engine *call.Engine) error {
	pterm.Println()
	pterm.Info.Println("Commands: contacts | search <query> | call <email> | add <email> | accept | reject | end | quit")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("[%s]", engine.Status())).
			Show()
		fields := strings.Fields(strings.TrimSpace(raw))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "contacts":
			showContacts(ctx, rest)

		case "search":
			if len(fields) < 2 {
				util.LogWarning("usage: search <query>")
				continue
			}
			showSearch(ctx, rest, strings.Join(fields[1:], " "))

		case "call":
			if len(fields) < 2 {
				util.LogWarning("usage: call <email>")
				continue
			}
			if err := engine.StartCall(ctx, fields[1]); err != nil {
				util.LogWarning("start call: %v", err)
			}

		case "add":
			if len(fields) < 2 {
				util.LogWarning("usage: add <email>")
				continue
			}
			if err := rest.AddContact(ctx, fields[1]); err != nil {
				util.LogWarning("add contact: %v", err)
			}

		case "accept":
			if err := engine.AcceptCall(ctx); err != nil {
				util.LogWarning("accept call: %v", err)
			}

		case "reject":
			if err := engine.RejectCall(); err != nil {
				util.LogWarning("reject call: %v", err)
			}

		case "end":
			if err := engine.EndCall(); err != nil {
				util.LogWarning("end call: %v", err)
			}

		case "quit", "exit":
			return nil

		default:
			util.LogWarning("unknown command %q", fields[0])
		}
	}
}

// showSearch prints users matching query, so they can be added as contacts.
func showSearch(ctx context.Context, rest *api.Client, query string) {
	results, err := rest.SearchUsers(ctx, query)
	if err != nil {
		util.LogWarning("search users: %v", err)
		return
	}
	if len(results) == 0 {
		pterm.Info.Printfln("No users matching %q", query)
		return
	}
	items := make([]pterm.BulletListItem, 0, len(results))
	for _, u := range results {
		items = append(items, pterm.BulletListItem{
			Level: 0,
			Text:  fmt.Sprintf("%s <%s>", u.DisplayName, u.Email),
		})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
}

// showContacts prints the contact list annotated with presence.
func showContacts(ctx context.Context, rest *api.Client) {
	contacts, err := rest.ListContacts(ctx)
	if err != nil {
		util.LogWarning("list contacts: %v", err)
		return
	}
	if len(contacts) == 0 {
		pterm.Info.Println("No contacts yet — use: add <email>")
		return
	}

	emails := make([]string, 0, len(contacts))
	for _, c := range contacts {
		emails = append(emails, c.Email)
	}
	online := map[string]bool{}
	if records, err := rest.Presence(ctx, emails); err != nil {
		util.LogWarning("fetch presence: %v", err)
	} else {
		for _, r := range records {
			online[r.Email] = r.Online
		}
	}

	items := make([]pterm.BulletListItem, 0, len(contacts))
	for _, c := range contacts {
		marker := "○"
		if online[c.Email] {
			marker = "●"
		}
		items = append(items, pterm.BulletListItem{
			Level: 0,
			Text:  fmt.Sprintf("%s %s <%s>", marker, c.DisplayName, c.Email),
		})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
}
