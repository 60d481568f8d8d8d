// ABOUTME: Entry point for vss-gateway, the versioned storage server
// ABOUTME: Serves the object API and drives migrations, keys and tokens from the command line

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/2389/vss-gateway/internal/auth"
	"github.com/2389/vss-gateway/internal/config"
	"github.com/2389/vss-gateway/internal/gateway"
	"github.com/2389/vss-gateway/internal/logging"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                     _
__   _____ ___        __ _  __ _| |_ _____      ____ _ _   _
\ \ / / __/ __|_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \ V /\__ \__ \_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \_/ |___/___/      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                     |___/                             |___/
`

type cli struct {
	Config string `short:"c" help:"Config file (YAML or TOML). Defaults to $VSS_CONFIG or ~/.config/vss/gateway.yaml." type:"path"`

	Serve   serveCmd   `cmd:"" default:"1" help:"Start the gateway server."`
	Migrate migrateCmd `cmd:"" help:"Drive a migration on a running gateway."`
	Keygen  keygenCmd  `cmd:"" help:"Generate a secp256k1 key pair for client tokens."`
	Token   tokenCmd   `cmd:"" help:"Mint a client token bound to a store id."`
	Health  healthCmd  `cmd:"" help:"Check gateway readiness."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

// runContext is bound into every command's Run method
type runContext struct {
	ctx        context.Context
	configPath string
}

// loadConfig resolves the config from --config or the default locations.
// Without --config a missing default file leaves defaults plus environment.
func (rc *runContext) loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(rc.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("vss-gateway"),
		kong.Description("Versioned key-value storage gateway."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := kctx.Run(&runContext{ctx: ctx, configPath: c.Config})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serveCmd struct {
	NoBanner bool `help:"Skip the startup banner."`
}

func (s *serveCmd) Run(rc *runContext) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if !s.NoBanner {
		cyan.Print(banner)
		gray.Printf("    version: %s\n\n", version)
	}

	cfg, err := rc.loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s\n", cfg.Database.Backend)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Auth.SelfHosted {
		yellow.Print("    ▶ ")
		fmt.Println("Auth:      self-hosted (tokens not verified)")
	}
	if cfg.Migration.SourceURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Migration: %s\n", cfg.Migration.SourceURL)
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting vss-gateway",
		"version", version,
		"backend", cfg.Database.Backend,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(rc.ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(rc.ctx)
}

type keygenCmd struct{}

func (k *keygenCmd) Run(rc *runContext) error {
	priv, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Printf("private_key: %s\n", auth.EncodePrivateKey(priv))
	fmt.Printf("public_key:  %s\n", auth.EncodePublicKey(&priv.PublicKey))
	color.New(color.FgYellow).Fprintln(os.Stderr, "Set public_key as auth.public_key (or AUTH_KEY). Keep private_key with your token issuer.")
	return nil
}

type tokenCmd struct {
	StoreID    string        `arg:"" help:"Store id the token is bound to."`
	PrivateKey string        `help:"Hex secp256k1 private key." env:"VSS_SIGNING_KEY" required:""`
	TTL        time.Duration `help:"Token lifetime; 0 for no expiry." default:"24h"`
}

func (t *tokenCmd) Run(rc *runContext) error {
	priv, err := auth.ParsePrivateKey(t.PrivateKey)
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}
	token, err := auth.NewSigner(priv).Sign(t.StoreID, t.TTL)
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}
	fmt.Println(token)
	return nil
}

type versionCmd struct{}

func (v *versionCmd) Run(rc *runContext) error {
	fmt.Println(version)
	return nil
}
