// Package main is the entrypoint for calldef (binary name "calldef").
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/morezero/calldef/internal/config"
	"github.com/morezero/calldef/internal/server"
	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/catalog"
	"github.com/morezero/calldef/pkg/commsutil"
	"github.com/morezero/calldef/pkg/db"
	"github.com/morezero/calldef/pkg/dispatcher"
	"github.com/morezero/calldef/pkg/opref"
	"github.com/morezero/calldef/pkg/registry"
)

const usage = `Usage: calldef [command]
       calldef serve                 Start the relay (NATS, HTTP pages, optional database).
       calldef call <op> [json] [k=v ...]
                                     Dispatch one operation, e.g. calldef call work.find@dev '{"hierarchy":"model"}' limit=5.
       calldef ops [api] [query]     List registered operations.
       calldef describe <op>         Print the descriptor of one operation as JSON.
       calldef endpoints             List gateway endpoints.
       calldef migrate up            Run database migrations.
       calldef migrate down          Roll back the last applied migration (needs its .down.sql).
       calldef migrate status        Show migration status.
       calldef ensure-db [name]      Create database if missing (default name: calldef_test). Uses DATABASE_URL host/user.
       calldef clear                 Truncate descriptor and journal tables; schema is preserved.
       calldef seed [file]           Upsert the catalog's descriptors into the database.
       calldef history [limit]       Show the most recent journaled calls.

Call flags:
  --unset <keys>  Send keys (comma separated, repeatable) as present without a value.
  --api <name>    Use this gateway API instead of resolving it from the operation's type.
  --relay         Send the call through a running relay on RELAY_SUBJECT instead of dispatching locally.
  A JSON object argument supplies parameters; k=v arguments override its keys.
  Values are parsed as JSON when possible (k=5, k=true, k=null, k='{"a":1}'), otherwise as strings.

Environment: CATALOG_FILE, GATEWAY_STAGE, GATEWAY_BASE_URL, GATEWAY_AUTH_TOKEN, COMMS_URL,
DATABASE_URL (migrate, clear, seed, history), MIGRATION_PATH, HTTP_ADDR. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "call":
		ok, err := runCall(args[1:])
		if err != nil {
			log.Fatalf("calldef call: %v", err)
		}
		if !ok {
			os.Exit(1)
		}
		return
	case "ops":
		if err := runOps(args[1:]); err != nil {
			log.Fatalf("calldef ops: %v", err)
		}
		return
	case "describe":
		if len(args) < 2 {
			log.Fatalf("calldef describe: require an operation name")
		}
		if err := runDescribe(args[1]); err != nil {
			log.Fatalf("calldef describe: %v", err)
		}
		return
	case "endpoints":
		if err := runEndpoints(); err != nil {
			log.Fatalf("calldef endpoints: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("calldef migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("calldef migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("calldef migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("calldef migrate down: %v", err)
			}
		default:
			log.Fatalf("calldef migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("calldef clear: %v", err)
		}
		return
	case "seed":
		catalogFile := ""
		if len(args) > 1 {
			catalogFile = args[1]
		}
		if err := runSeed(catalogFile); err != nil {
			log.Fatalf("calldef seed: %v", err)
		}
		return
	case "history":
		limit := 0
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				log.Fatalf("calldef history: invalid limit %q", args[1])
			}
			limit = n
		}
		if err := runHistory(limit); err != nil {
			log.Fatalf("calldef history: %v", err)
		}
		return
	case "ensure-db":
		dbName := "calldef_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("calldef ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("calldef: %v", err)
	}
}

// callArgs is the parsed command line of "calldef call".
type callArgs struct {
	operation string
	api       string
	relay     bool
	params    map[string]json.RawMessage
	unset     []string
}

func parseCallArgs(args []string) (*callArgs, error) {
	out := &callArgs{params: map[string]json.RawMessage{}}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch a {
		case "--unset", "--api":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a value", a)
			}
			i++
			if a == "--unset" {
				for _, k := range strings.Split(args[i], ",") {
					if k = strings.TrimSpace(k); k != "" {
						out.unset = append(out.unset, k)
					}
				}
			} else {
				out.api = args[i]
			}
			continue
		case "--relay":
			out.relay = true
			continue
		}
		if out.operation == "" && !strings.Contains(a, "=") {
			out.operation = a
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(a), "{") {
			if err := mergeParamsJSON(out.params, a); err != nil {
				return nil, err
			}
			continue
		}
		key, value, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out.params[key] = paramValue(value)
	}
	if out.operation == "" {
		return nil, fmt.Errorf("require an operation such as work.find")
	}
	return out, nil
}

// mergeParamsJSON adds the keys of a JSON object to params. Keys already set
// by k=v arguments are kept.
func mergeParamsJSON(params map[string]json.RawMessage, obj string) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return fmt.Errorf("params must be a JSON object: %w", err)
	}
	for k, v := range m {
		if _, set := params[k]; !set {
			params[k] = v
		}
	}
	return nil
}

// paramValue keeps valid JSON as is and quotes anything else as a string.
func paramValue(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	b, _ := json.Marshal(v)
	return b
}

func (c *callArgs) request() *dispatcher.CallRequest {
	return &dispatcher.CallRequest{
		ID:        "cli",
		Operation: c.operation,
		API:       c.api,
		Params:    c.params,
		Unset:     c.unset,
	}
}

func runCall(args []string) (bool, error) {
	ca, err := parseCallArgs(args)
	if err != nil {
		return false, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	server.SetLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	var resp *dispatcher.CallResponse
	if ca.relay {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
		if err != nil {
			return false, err
		}
		defer nc.Close()
		resp = &dispatcher.CallResponse{}
		if err := commsutil.Request(ctx, nc, cfg.RelaySubject, ca.request(), resp, cfg.RequestTimeout); err != nil {
			return false, err
		}
	} else {
		s, err := localServer(cfg)
		if err != nil {
			return false, err
		}
		resp = s.HandleCall(ctx, ca.request())
	}
	return printResponse(os.Stdout, resp), nil
}

// localServer wires an in-process relay without NATS or HTTP.
func localServer(cfg *config.Config) (*server.Server, error) {
	cat, err := server.LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := cat.Registry()
	if err != nil {
		return nil, err
	}
	endpoints, err := server.BuildEndpoints(cfg, cat)
	if err != nil {
		return nil, err
	}
	if cfg.GatewayTransport == config.TransportComms {
		return nil, fmt.Errorf("GATEWAY_TRANSPORT=%s needs --relay", cfg.GatewayTransport)
	}
	tr, err := server.NewTransport(cfg, endpoints, nil)
	if err != nil {
		return nil, err
	}
	return server.New(server.Params{Config: cfg, Registry: reg, Endpoints: endpoints, Transport: tr}), nil
}

// printResponse renders a relay answer and reports whether the call succeeded.
func printResponse(w io.Writer, resp *dispatcher.CallResponse) bool {
	res := resp.Result
	switch {
	case res == nil && resp.Error != nil:
		fmt.Fprintf(w, "%s(%s)\n", resp.Error.Code, resp.Error.Message)
		return false
	case res == nil:
		fmt.Fprintln(w, "empty response")
		return false
	case !res.IsSuccess:
		fmt.Fprintln(w, res.ErrorInfo.DisplayMessage())
	default:
		var pretty json.RawMessage
		if b, err := json.MarshalIndent(res.Response, "", "  "); err == nil {
			pretty = b
		} else {
			pretty = res.Response
		}
		fmt.Fprintln(w, string(pretty))
	}
	fmt.Fprintf(w, "at %s\n", res.DateTimeString())
	return res.IsSuccess
}

func loadRegistry() (*config.Config, *catalog.Catalog, *registry.Registry, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	cat, err := server.LoadCatalog(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	reg, err := cat.Registry()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, cat, reg, nil
}

func runOps(args []string) error {
	_, _, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	in := &registry.DiscoverInput{Limit: 500}
	if len(args) > 0 {
		in.API = args[0]
	}
	if len(args) > 1 {
		in.Query = args[1]
	}
	out := reg.Discover(in)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tROUTE\tQUERY\tBODY")
	for _, d := range out.Operations {
		body := strings.Join(d.BodyParams, ",")
		if d.BodyMode == calldef.BodyComplement.String() {
			body = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Route(), strings.Join(d.QueryParams, ","), body)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d of %d operations\n", len(out.Operations), out.Pagination.Total)
	return nil
}

func runDescribe(name string) error {
	_, _, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if ref, err := opref.Parse(name); err == nil {
		name = ref.Full
	}
	d, err := reg.Describe(name)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func runEndpoints() error {
	cfg, cat, _, err := loadRegistry()
	if err != nil {
		return err
	}
	endpoints, err := server.BuildEndpoints(cfg, cat)
	if err != nil {
		return err
	}
	fmt.Print(endpoints.String())
	return nil
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	n, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Printf("Applied %d of %d migrations.\n", n, len(migrations))
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	states, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED")
	for _, st := range states {
		applied := "pending"
		if st.Applied != nil {
			applied = st.Applied.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\n", st.Version, applied)
	}
	return tw.Flush()
}

func runMigrateDown() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	version, err := db.MigrationDown(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	fmt.Printf("Rolled back %s.\n", version)
	return nil
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearAll(ctx, pool); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	targetURL, err := db.TargetURL(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), targetURL)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created database %q.\n", dbName)
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func runSeed(catalogFile string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	if catalogFile != "" {
		cfg.CatalogFile = catalogFile
	}
	cat, err := server.LoadCatalog(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	n, err := db.SeedFromCatalog(ctx, pool, cat)
	if err != nil {
		return fmt.Errorf("seed descriptors: %w", err)
	}
	fmt.Printf("Seeded %d descriptors from %s.\n", n, cat.Name)
	return nil
}

func runHistory(limit int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	calls, err := db.NewRepository(pool).ListRecentCalls(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tOPERATION\tSTAGE\tMETHOD\tPATH\tRESULT\tMS")
	for _, c := range calls {
		result := "ok"
		if !c.IsSuccess && c.ErrorCode != nil {
			result = *c.ErrorCode
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			c.Created.Format("2006-01-02 15:04:05"), c.Operation, c.Stage, c.Method, c.Path, result, c.DurationMs)
	}
	return tw.Flush()
}
