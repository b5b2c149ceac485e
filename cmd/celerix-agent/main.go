package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-agent/internal/activity"
	"github.com/celerix-dev/celerix-agent/internal/auth"
	"github.com/celerix-dev/celerix-agent/internal/config"
	"github.com/celerix-dev/celerix-agent/internal/credentials"
	"github.com/celerix-dev/celerix-agent/pkg/schema"
	"github.com/celerix-dev/celerix-agent/pkg/sdk"
	"github.com/celerix-dev/celerix-agent/pkg/signature"
	"github.com/spf13/pflag"
)

type env struct {
	cfg   *config.Config
	creds *credentials.Store
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	command := strings.ToLower(os.Args[1])
	flags := pflag.NewFlagSet(command, pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to the agent YAML config (default: $CELERIX_CONFIG)")

	switch command {
	case "ping":
		flags.Parse(os.Args[2:])
		e := load(*configPath)
		client := e.client()
		if _, err := client.Ping(context.Background()); err != nil {
			log.Fatalf("Ping failed: %v", err)
		}
		fmt.Println("PONG")

	case "connect":
		key := flags.String("key", "", "API key issued by the collector")
		secret := flags.String("secret", "", "API secret issued by the collector")
		flags.Parse(os.Args[2:])
		if *key == "" || *secret == "" {
			log.Fatal("Usage: celerix-agent connect --key <key> --secret <secret>")
		}
		e := load(*configPath)
		e.creds.SetKey(*key)
		e.creds.SetSecret(*secret)
		// Verify the pair before persisting it.
		if _, err := e.client().Ping(context.Background()); err != nil {
			log.Fatalf("Collector rejected the credentials: %v", err)
		}
		if err := e.creds.Save(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")

	case "disconnect":
		flags.Parse(os.Args[2:])
		e := load(*configPath)
		if err := e.creds.Clear(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")

	case "status":
		flags.Parse(os.Args[2:])
		e := load(*configPath)
		key, _ := e.creds.Credentials()
		printJSON(map[string]any{
			"collector":  e.cfg.Collector.Host,
			"connected":  e.creds.HasKeys(),
			"api_key":    mask(key),
			"data_dir":   e.cfg.DataDir,
			"listen":     e.cfg.ListenAddr,
			"auth_skew":  e.cfg.Auth.MaxSkew.String(),
			"sealed_key": e.cfg.MasterKey != "",
		})

	case "log":
		action := flags.String("action", string(schema.ActionUpdated), "action to report")
		subtype := flags.String("subtype", "test", "object subtype")
		name := flags.String("name", "celerix-agent test event", "object name")
		flags.Parse(os.Args[2:])
		e := load(*configPath)
		client := e.client()
		emitter, err := activity.NewEmitter(activity.Config{
			Sender: client,
			Site:   schema.Site{URL: e.cfg.Site.URL, Name: e.cfg.Site.Name},
		})
		if err != nil {
			log.Fatal(err)
		}
		ctx := activity.WithActor(context.Background(), schema.Actor{Type: schema.ActorCLI, Name: "celerix-agent"})
		if err := emitter.Monitor("cli", activity.LogAll).Emit(ctx, schema.Action(*action), nil, *subtype, *name, nil); err != nil {
			log.Fatal(err)
		}
		client.Wait()
		fmt.Println("OK")

	case "sign":
		method := flags.StringP("method", "X", "POST", "HTTP method")
		body := flags.StringP("data", "d", "", "request body")
		flags.Parse(os.Args[2:])
		e := load(*configPath)
		key, secret := e.creds.Credentials()
		if key == "" || secret == "" {
			log.Fatal(sdk.ErrMissingCredentials)
		}
		sig := signature.Sign(key, secret, *method, *body, time.Now().Unix())
		fmt.Printf("%s: %s\n", auth.HeaderKey, key)
		fmt.Printf("%s: %d\n", auth.HeaderTimestamp, sig.Timestamp)
		fmt.Printf("%s: %s\n", auth.HeaderAlgorithm, sig.Algorithm)
		fmt.Printf("%s: %s\n", auth.HeaderSignature, sig.Value)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func load(configPath string) *env {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		log.Fatal(err)
	}
	persister, err := credentials.NewPersistence(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", cfg.DataDir, err)
	}
	creds := credentials.NewStore(persister, masterKey, cfg.NewLogger())
	if err := creds.Load(); err != nil {
		log.Fatal(err)
	}
	return &env{cfg: cfg, creds: creds}
}

func (e *env) client() *sdk.Client {
	client, err := sdk.NewClient(sdk.Config{
		Host:        e.cfg.Collector.Host,
		Version:     e.cfg.Collector.Version,
		Credentials: e.creds,
		Insecure:    e.cfg.Collector.Insecure,
		Timeout:     e.cfg.Collector.RequestTimeout,
		LogTimeout:  e.cfg.Collector.LogTimeout,
		Logger:      e.cfg.NewLogger(),
	})
	if err != nil {
		log.Fatalf("Failed to configure collector client: %v", err)
	}
	return client
}

func mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func printUsage() {
	fmt.Println("Celerix Agent CLI - Manage the site's link to the collector")
	fmt.Println("\nUsage:")
	fmt.Println("  celerix-agent connect --key <key> --secret <secret>")
	fmt.Println("  celerix-agent disconnect")
	fmt.Println("  celerix-agent status")
	fmt.Println("  celerix-agent ping")
	fmt.Println("  celerix-agent log [--action updated] [--subtype test] [--name <name>]")
	fmt.Println("  celerix-agent sign [-X POST] [-d <body>]")
	fmt.Println("\nAll commands accept --config <file>.")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  CELERIX_CONFIG             Path to the YAML config")
	fmt.Println("  CELERIX_DATA_DIR           Where credentials are stored (default: ./data)")
	fmt.Println("  CELERIX_COLLECTOR_HOST     Collector base URL")
	fmt.Println("  CELERIX_COLLECTOR_INSECURE Set to true for a local http collector")
	fmt.Println("  CELERIX_MASTER_KEY         Hex key sealing the stored secret")
}
