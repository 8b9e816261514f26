package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/engine"
	"uniqsocial/client/internal/window"

	"github.com/spf13/pflag"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: admin [flags] <command> [args]

Commands:
  window              match window state and countdown
  today               today's match
  history <session>   messages of a session
  end <session>       end a session
  logout              clear the stored credentials

Flags:`)
	pflag.PrintDefaults()
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	email := pflag.String("email", "", "sign in with this email first")
	password := pflag.String("password", "", "password for --email")
	pflag.StringVar(&cfg.Profile, "profile", cfg.Profile, "credential profile")
	pflag.StringVar(&cfg.APIURL, "api", cfg.APIURL, "API base URL")
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	if args[0] == "window" {
		printWindow(window.Classify(time.Now()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := engine.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer stores.Close()
	if !stores.Persistent() && *email == "" {
		log.Println("Warning: UNIQ_REDIS_ADDR is not set, nothing is remembered between runs; pass --email")
	}

	e := engine.New(cfg, stores.For(cfg.Profile), clock.Real())
	if *email != "" {
		if _, err := e.API.Login(ctx, *email, *password); err != nil {
			log.Fatalf("Sign in failed: %v", err)
		}
	}

	switch args[0] {
	case "today":
		resp, err := e.API.TodayMatch(ctx)
		if err != nil {
			log.Fatalf("Error checking today's match: %v", err)
		}
		if !resp.Matched || resp.Match == nil {
			fmt.Println("No match today.", resp.Message)
			return
		}
		m := resp.Match
		fmt.Printf("session %s\npartner %s (%s)\nstatus  %s\nstarted %s\n",
			m.SessionID, m.PartnerUsername, m.PartnerID, m.Status, m.StartedAt.Local().Format(time.RFC1123))

	case "history":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		messages, err := e.API.Messages(ctx, args[1])
		if err != nil {
			log.Fatalf("Error fetching history: %v", err)
		}
		for _, m := range messages {
			fmt.Printf("%s  %s  %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.SenderID, m.Content)
		}

	case "end":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		if err := e.API.EndChat(ctx, args[1]); err != nil {
			log.Fatalf("Error ending session: %v", err)
		}
		fmt.Printf("Session %s has been ended.\n", args[1])

	case "logout":
		if err := e.Logout(ctx); err != nil {
			log.Fatalf("Error clearing credentials: %v", err)
		}
		fmt.Println("Credentials cleared.")

	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func printWindow(st window.State) {
	if st.IsOpen() {
		fmt.Println("open")
		return
	}
	fmt.Printf("%s, opens %s (in %s)\n", st.Phase, st.OpensAt.Format("15:04"), st.Countdown())
}
