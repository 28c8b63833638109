package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/matheus3301/cipherlog/internal/api"
	"github.com/matheus3301/cipherlog/internal/lock"
	"github.com/matheus3301/cipherlog/internal/profile"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatalf("%v", err)
	}
	profileDir = profile.Dir(profileName)

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := api.Dial(profile.SocketPath(profileName))
	if err != nil {
		fatalf("cannot connect to daemon for profile %q: %v", profileName, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "identity":
		cmdIdentity(ctx, c, *jsonFlag)
	case "identity-qr":
		if len(args) < 2 {
			fatalf("usage: cipherlogctl identity-qr <file.png>")
		}
		cmdIdentityQR(ctx, c, args[1])
	case "contacts":
		cmdContacts(ctx, c, *jsonFlag)
	case "groups":
		cmdGroups(ctx, c, *jsonFlag)
	case "history":
		if len(args) < 2 {
			fatalf("usage: cipherlogctl history <contact|creator:groupseq> [n]")
		}
		limit := 20
		if len(args) >= 3 {
			if limit, err = strconv.Atoi(args[2]); err != nil || limit <= 0 {
				fatalf("invalid count %q", args[2])
			}
		}
		cmdHistory(ctx, c, args[1], limit, *jsonFlag)
	case "enable-timers":
		resp, err := c.EnableTimers(ctx)
		if err != nil {
			rpcFatal(err)
		}
		fmt.Printf("State: %s\n", resp.State)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: cipherlogctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                  Show store status and counts")
	fmt.Fprintln(os.Stderr, "  identity                Show the local identity")
	fmt.Fprintln(os.Stderr, "  identity-qr <file.png>  Write the identity verification QR code")
	fmt.Fprintln(os.Stderr, "  contacts                List contacts")
	fmt.Fprintln(os.Stderr, "  groups                  List groups")
	fmt.Fprintln(os.Stderr, "  history <conv> [n]      Show the last n messages of a conversation")
	fmt.Fprintln(os.Stderr, "  enable-timers           Start sweeping stale queued messages")
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	if err != nil {
		rpcFatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("State:    %s\n", resp.State)
	fmt.Printf("Uptime:   %s\n", time.Duration(resp.UptimeMs)*time.Millisecond)
	fmt.Printf("Contacts: %d\n", resp.Contacts)
	fmt.Printf("Groups:   %d\n", resp.Groups)
	fmt.Printf("Messages: %d contact, %d group, %d control\n", resp.ContactMessages, resp.GroupMessages, resp.ControlMessages)
	fmt.Printf("Media:    %d\n", resp.MediaItems)
	fmt.Printf("Queued:   %d\n", resp.QueuedMessages)
}

func cmdIdentity(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.GetIdentity(ctx)
	if err != nil {
		rpcFatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("ID:         %s\n", resp.ID)
	fmt.Printf("Public key: %s\n", resp.PublicKey)
}

func cmdIdentityQR(ctx context.Context, c *api.Client, path string) {
	resp, err := c.GetIdentity(ctx)
	if err != nil {
		rpcFatal(err)
	}
	key, err := protocol.ParsePublicKey(resp.PublicKey)
	if err != nil {
		fatalf("%v", err)
	}
	png, err := protocol.IdentityQRPNG(protocol.ContactID(resp.ID), key, 256)
	if err != nil {
		fatalf("%v", err)
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func cmdContacts(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.ListContacts(ctx, &api.ListContactsRequest{})
	if err != nil {
		rpcFatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Contacts) == 0 {
		fmt.Println("No contacts.")
		return
	}
	for _, ct := range resp.Contacts {
		fmt.Printf("%-8s %-20s %-17s %s\n", ct.ID, ct.Nickname, ct.Verification, ct.AccountStatus)
	}
}

func cmdGroups(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.ListGroups(ctx)
	if err != nil {
		rpcFatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Groups) == 0 {
		fmt.Println("No groups.")
		return
	}
	for _, g := range resp.Groups {
		fmt.Printf("%-25s %-13s %3d members  %s\n", g.ID, g.State, len(g.Members), g.Title)
	}
}

func cmdHistory(ctx context.Context, c *api.Client, conv string, limit int, jsonOut bool) {
	resp, err := c.ReadConversation(ctx, &api.ReadConversationRequest{Conversation: conv, Backward: true, Limit: limit})
	if err != nil {
		rpcFatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	// Pages come newest first.
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		dir := "<"
		if m.Outgoing {
			dir = ">"
		}
		fmt.Printf("%6d %s %s %-8s %-11s %s\n", m.ID, m.CreatedAt.Format(time.DateTime), dir, m.Sender, m.Status, m.Preview)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

// profileDir is consulted when the daemon cannot be reached.
var profileDir string

func rpcFatal(err error) {
	if status.Code(err) == codes.Unavailable {
		fatalf("%v (%s)", err, daemonDiagnosis(profileDir))
	}
	fatalf("%v", err)
}

func daemonDiagnosis(dir string) string {
	pid, ok := lock.Holder(dir)
	if !ok {
		return "daemon not running, start cipherlogd"
	}
	return fmt.Sprintf("daemon holds the profile lock as PID %d but is not answering", pid)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
