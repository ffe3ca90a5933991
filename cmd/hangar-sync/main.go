package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/hangar-sync/internal/assets"
	"github.com/alexjbarnes/hangar-sync/internal/config"
	"github.com/alexjbarnes/hangar-sync/internal/credstore"
	"github.com/alexjbarnes/hangar-sync/internal/esi"
	"github.com/alexjbarnes/hangar-sync/internal/logging"
	"github.com/alexjbarnes/hangar-sync/internal/mcpserver"
	"github.com/alexjbarnes/hangar-sync/internal/models"
	"github.com/alexjbarnes/hangar-sync/internal/sde"
	"github.com/alexjbarnes/hangar-sync/internal/sso"
	"github.com/alexjbarnes/hangar-sync/internal/state"
)

var Version = "dev"

const usage = `usage: hangar-sync <command>

commands:
  login              authorize a character via the EVE SSO
  logout <id>        remove a character's credential and cached assets
  characters         list authorized characters
  select <id>        make a character the default for sync
  sync [--force]     synchronize and print the selected character's hangar
  mcp                serve hangar query tools over MCP stdio
`

func main() {
	command := "sync"
	args := []string{}

	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	if err := run(command, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "login":
		return runLogin(ctx, cfg, logger)
	case "logout":
		return runLogout(cfg, logger, args)
	case "characters":
		return runCharacters(cfg, logger)
	case "select":
		return runSelect(cfg, logger, args)
	case "sync":
		force := len(args) > 0 && args[0] == "--force"
		return runSync(ctx, cfg, logger, force)
	case "mcp":
		return runMCP(ctx, cfg, logger)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// services bundles the wired-up dependency graph. Initialization order:
// state db, master secret, credential store, then the API client on top.
type services struct {
	state  *state.State
	creds  *credstore.Store
	client *esi.Client
}

func openServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	st, err := state.Load(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	secret, err := credstore.LoadOrCreateSecret(cfg.SecretPath())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading secret: %w", err)
	}

	creds, err := credstore.New(st, secret, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating credential store: %w", err)
	}

	client := esi.NewClient(esi.ClientConfig{
		BaseURL:     cfg.ESIBaseURL,
		Pacer:       esi.NewPacer(cfg.RateLimit, cfg.RateBurst),
		Credentials: creds,
		Refresher:   sso.NewRefresher(cfg.ClientID, cfg.TokenURL, nil),
		Logger:      logger,
	})

	return &services{state: st, creds: creds, client: client}, nil
}

func (s *services) close() {
	_ = s.state.Close()
}

func runLogin(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireClientID(); err != nil {
		return err
	}

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	flow := sso.NewFlow(sso.Config{
		ClientID:     cfg.ClientID,
		Scopes:       cfg.ScopeList(),
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		VerifyURL:    cfg.VerifyURL,
		CallbackPort: cfg.CallbackPort,
		Logger:       logger,
	})

	cred, err := flow.Authorize(ctx)
	if err != nil {
		return fmt.Errorf("authorizing: %w", err)
	}

	if err := svc.creds.Put(*cred); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	fmt.Printf("Logged in as %s (%d)\n", cred.CharacterName, cred.CharacterID)

	return nil
}

func runLogout(cfg *config.Config, logger *slog.Logger, args []string) error {
	characterID, err := parseCharacterID(args)
	if err != nil {
		return err
	}

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.creds.Remove(characterID); err != nil {
		return fmt.Errorf("removing credential: %w", err)
	}

	fmt.Printf("Removed character %d\n", characterID)

	return nil
}

func runCharacters(cfg *config.Config, logger *slog.Logger) error {
	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	summaries, err := svc.creds.List()
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Println("No characters. Run 'hangar-sync login' first.")
		return nil
	}

	selected, err := svc.creds.Selected()
	if err != nil {
		return err
	}

	for _, s := range summaries {
		marker := " "
		if s.CharacterID == selected {
			marker = "*"
		}

		fmt.Printf("%s %d  %-24s  token expires %s\n",
			marker, s.CharacterID, s.CharacterName, s.Expiry.Local().Format("2006-01-02 15:04"))
	}

	return nil
}

func runSelect(cfg *config.Config, logger *slog.Logger, args []string) error {
	characterID, err := parseCharacterID(args)
	if err != nil {
		return err
	}

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.creds.Select(characterID); err != nil {
		return err
	}

	fmt.Printf("Selected character %d\n", characterID)

	return nil
}

func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger, force bool) error {
	if err := cfg.RequireClientID(); err != nil {
		return err
	}

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	characterID, err := svc.creds.Selected()
	if err != nil {
		return err
	}

	if characterID == 0 {
		return fmt.Errorf("no character selected; run 'hangar-sync login' first")
	}

	data, err := sde.Load(cfg.SDEDir, logger)
	if err != nil {
		return fmt.Errorf("loading static data: %w", err)
	}

	engine := assets.NewService(svc.client, svc.state, data, cfg.CacheMaxAge, logger)

	groups, err := engine.Hangar(ctx, characterID, force)
	if err != nil {
		return fmt.Errorf("synchronizing hangar: %w", err)
	}

	printHangar(groups, data)

	return nil
}

func runMCP(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireClientID(); err != nil {
		return err
	}

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	data, err := sde.Load(cfg.SDEDir, logger)
	if err != nil {
		return fmt.Errorf("loading static data: %w", err)
	}

	engine := assets.NewService(svc.client, svc.state, data, cfg.CacheMaxAge, logger)

	server := mcp.NewServer(
		&mcp.Implementation{Name: "hangar-sync", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(server, svc.creds, engine, data)

	logger.Info("starting MCP server on stdio", slog.String("version", Version))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Keep static data current while the server runs.
		err := data.Watch(gctx)
		if gctx.Err() != nil {
			return nil
		}

		return err
	})

	g.Go(func() error {
		return server.Run(gctx, &mcp.StdioTransport{})
	})

	return g.Wait()
}

func parseCharacterID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one character id argument")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid character id %q", args[0])
	}

	return id, nil
}

// printHangar renders the resolved hierarchy as an indented tree.
func printHangar(groups []models.LocationGroup, data *sde.Data) {
	for _, group := range groups {
		fmt.Println(formatLocation(group.Location))

		for _, node := range group.Assets {
			printNode(node, data, 1)
		}

		fmt.Println()
	}
}

func formatLocation(loc models.ResolvedLocation) string {
	var sb strings.Builder

	sb.WriteString(loc.Name)

	if loc.SystemName != "" {
		sb.WriteString(fmt.Sprintf("  [%s", loc.SystemName))

		if loc.Security != "" {
			sb.WriteString(" " + string(loc.Security))
		}

		if loc.RegionName != "" {
			sb.WriteString(", " + loc.RegionName)
		}

		sb.WriteString("]")
	}

	return sb.String()
}

func printNode(node models.AssetNode, data *sde.Data, depth int) {
	name := fmt.Sprintf("Type %d", node.Asset.TypeID)
	if info, ok := data.TypeByID(node.Asset.TypeID); ok {
		name = info.Name
	}

	line := fmt.Sprintf("%s%s x%d", strings.Repeat("  ", depth), name, node.Asset.Quantity)
	if depth > 1 && node.Asset.LocationFlag != "" {
		line += fmt.Sprintf(" (%s)", node.Asset.LocationFlag)
	}

	fmt.Println(line)

	for _, child := range node.Children {
		printNode(child, data, depth+1)
	}
}
