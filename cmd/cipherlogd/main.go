package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/cipherlog/internal/daemon"
	"github.com/matheus3301/cipherlog/internal/profile"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	initFlag := flag.String("init", "", "create a new store owned by this identity if none exists")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	password := os.Getenv(daemon.PasswordEnv)
	if password == "" {
		fmt.Fprintf(os.Stderr, "error: %s is not set\n", daemon.PasswordEnv)
		os.Exit(1)
	}

	p := daemon.Params{ProfileName: profileName, Password: password}
	if *initFlag != "" {
		id, err := protocol.ParseContactID(*initFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		p.InitIdentity = id
	}

	app := fx.New(daemon.Module(p))
	app.Run()
}
