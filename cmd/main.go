package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"uniqsocial/client/internal/chat"
	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/engine"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/window"

	"github.com/spf13/pflag"
)

const help = `/find     find today's match
/status   match window and today's match
/history  reload the conversation
/location LAT LON CITY  share where you are
/end      end the chat for both of you
/logout   forget the stored credentials
/quit     leave the client`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	email := pflag.String("email", "", "account email")
	password := pflag.String("password", "", "account password")
	username := pflag.String("username", "", "username; with --signup")
	signup := pflag.Bool("signup", false, "create the account instead of signing in")
	pflag.StringVar(&cfg.Profile, "profile", cfg.Profile, "credential profile")
	pflag.StringVar(&cfg.APIURL, "api", cfg.APIURL, "API base URL")
	pflag.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "WebSocket base URL")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := engine.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer stores.Close()

	e := engine.New(cfg, stores.For(cfg.Profile), clock.Real())
	defer e.Close()

	var profile models.Profile
	switch {
	case *signup:
		profile, err = e.Signup(ctx, *email, *password, *username)
	case *email != "":
		profile, err = e.Login(ctx, *email, *password)
	default:
		profile, err = e.Restore(ctx)
	}
	if errors.Is(err, engine.ErrNotSignedIn) {
		log.Fatal("Not signed in: pass --email and --password (and --signup --username for a new account)")
	}
	if err != nil {
		log.Fatalf("Sign in failed: %v", err)
	}
	fmt.Printf("Signed in as %s.\n", profile.Username)

	e.Chat.Subscribe(func(ev chat.Event) { printEvent(e, ev) })
	go watchWindow(ctx, e)

	if e.Match.Snapshot().Status == models.StatusMatched {
		if err := e.Join(ctx); err != nil {
			log.Printf("WARNING: rejoining today's chat: %v", err)
		} else {
			printMatch(e)
		}
	}
	printStatus(e)
	fmt.Println(help)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, e, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handleLine runs one input line and reports whether to keep going.
func handleLine(ctx context.Context, e *engine.Engine, line string) bool {
	switch line {
	case "":
	case "/quit":
		return false
	case "/help":
		fmt.Println(help)
	case "/status":
		printStatus(e)
	case "/find":
		find(ctx, e)
	case "/history":
		sessionID := e.Chat.Snapshot().SessionID
		if sessionID == "" {
			fmt.Println("You are not in a chat.")
			break
		}
		if err := e.Chat.LoadHistory(ctx, sessionID); err != nil {
			fmt.Printf("Could not load history: %v\n", err)
			break
		}
		for _, m := range e.Chat.Snapshot().Messages {
			printMessage(e, m)
		}
	case "/end":
		if err := e.End(ctx); err != nil {
			fmt.Printf("Could not end the chat: %v\n", err)
		}
	case "/logout":
		if err := e.Logout(ctx); err != nil {
			log.Printf("WARNING: logout: %v", err)
		}
		fmt.Println("Signed out.")
		return false
	default:
		if fields := strings.Fields(line); fields[0] == "/location" {
			updateLocation(ctx, e, fields[1:])
			break
		}
		if strings.HasPrefix(line, "/") {
			fmt.Println("Unknown command, /help lists them.")
			break
		}
		if _, err := e.Send(line); err != nil {
			fmt.Printf("Not sent: %v\n", err)
		}
	}
	return true
}

func updateLocation(ctx context.Context, e *engine.Engine, args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: /location LAT LON CITY")
		return
	}
	lat, errLat := strconv.ParseFloat(args[0], 64)
	lon, errLon := strconv.ParseFloat(args[1], 64)
	if errLat != nil || errLon != nil {
		fmt.Println("Usage: /location LAT LON CITY")
		return
	}
	loc := models.LocationUpdate{
		Latitude:  lat,
		Longitude: lon,
		City:      strings.Join(args[2:], " "),
		Timezone:  time.Local.String(),
	}
	if err := e.UpdateLocation(ctx, loc); err != nil {
		fmt.Printf("Location not updated: %v\n", err)
		return
	}
	fmt.Printf("Location set to %s.\n", loc.City)
}

func find(ctx context.Context, e *engine.Engine) {
	err := e.Find(ctx)
	switch {
	case errors.Is(err, engine.ErrWindowClosed):
		fmt.Printf("The match window opens at 20:00, in %s.\n", e.Window().Countdown())
		return
	case err != nil:
		fmt.Printf("%s: %v\n", e.Match.Snapshot().Error, err)
		return
	}

	snap := e.Match.Snapshot()
	switch snap.Status {
	case models.StatusChatting:
		printMatch(e)
	case models.StatusEnded:
		fmt.Println("Today's chat has ended. Come back tomorrow at 20:00.")
	default:
		fmt.Println(snap.Error)
	}
}

func watchWindow(ctx context.Context, e *engine.Engine) {
	var changes window.OpenChanges
	window.Watch(ctx, e.Clock, func(st window.State) {
		if !changes.Changed(st) {
			return
		}
		if st.IsOpen() {
			fmt.Println("The match window is open, /find your match.")
		} else {
			fmt.Println("The match window has closed.")
		}
	})
}

func printStatus(e *engine.Engine) {
	st := e.Window()
	if st.IsOpen() {
		fmt.Println("Match window: open")
	} else {
		fmt.Printf("Match window: %s, opens in %s\n", st.Phase, st.Countdown())
	}

	snap := e.Match.Snapshot()
	if snap.Match != nil {
		fmt.Printf("Today's match: %s (%s)\n", snap.Match.PartnerUsername, snap.Status)
	} else {
		fmt.Printf("Today's match: none (%s)\n", snap.Status)
	}
}

func printMatch(e *engine.Engine) {
	fmt.Printf("You are matched with %s. Say hi!\n", partner(e))
	for _, m := range e.Chat.Snapshot().Messages {
		printMessage(e, m)
	}
}

func printEvent(e *engine.Engine, ev chat.Event) {
	switch ev.Kind {
	case chat.MessageReceived:
		printMessage(e, ev.Message)
	case chat.TypingChanged:
		if ev.Typing {
			fmt.Printf("%s is typing...\n", partner(e))
		}
	case chat.SessionEnded:
		fmt.Println("The chat has ended.")
	case chat.ConnectionLost:
		fmt.Println("Connection lost. /find reconnects to today's chat.")
	}
}

func printMessage(e *engine.Engine, m models.ChatMessage) {
	who := "you"
	if m.SenderID != e.SelfID() {
		who = partner(e)
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
}

func partner(e *engine.Engine) string {
	if m := e.Match.Snapshot().Match; m != nil && m.PartnerUsername != "" {
		return m.PartnerUsername
	}
	return "partner"
}
