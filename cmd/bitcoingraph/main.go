package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bitcoingraph/bitcoingraph/internal/bgconfig"
	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
	"github.com/bitcoingraph/bitcoingraph/internal/bglog"
	"github.com/bitcoingraph/bitcoingraph/internal/dump"
	"github.com/bitcoingraph/bitcoingraph/internal/entity"
	"github.com/bitcoingraph/bitcoingraph/internal/metrics"
	"github.com/bitcoingraph/bitcoingraph/internal/model"
	"github.com/bitcoingraph/bitcoingraph/internal/node"
	"github.com/bitcoingraph/bitcoingraph/internal/rpcclient"
	"github.com/bitcoingraph/bitcoingraph/internal/walker"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "export":
		err = runExport(args)
	case "compute-entities":
		err = runComputeEntities(args)
	case "inspect-block":
		err = runInspectBlock(args)
	case "version":
		fmt.Printf("bitcoingraph v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "bitcoingraph: %s\n", err)
		if kind, ok := bgerr.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "  kind: %s\n", kind)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `bitcoingraph — Bitcoin transaction ledger graph extraction

Usage:
  bitcoingraph export --from H1 --to H2 [--out DIR] [--config FILE] [--plain-header] [--no-separate-header] [--no-dedup-tx] [--metrics-addr ADDR] [--run-id ID]
  bitcoingraph compute-entities --in DIR [--config FILE] [--sort-input] [--sqlite-audit] [--include-unspent-singletons]
  bitcoingraph inspect-block <hash> [--config FILE] [--transport rpc|rest]
  bitcoingraph version`)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	from := fs.Uint64("from", 0, "start height (inclusive)")
	to := fs.Uint64("to", 0, "end height (inclusive)")
	out := fs.String("out", "./dump", "dump output directory")
	configFile := fs.String("config", "", "path to a config file (optional)")
	plainHeader := fs.Bool("plain-header", false, "use plain column-name headers instead of typed")
	noSeparateHeader := fs.Bool("no-separate-header", false, "write headers inline instead of to sibling *_header files")
	noDedupTx := fs.Bool("no-dedup-tx", false, "skip the transactions/outputs/rel_tx_output/rel_output_address dedup pass")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	runID := fs.String("run-id", "", "resume a previous run's checkpoint by its run id instead of starting a fresh one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := bgconfig.Load(*configFile)
	if err != nil {
		return err
	}
	if *plainHeader {
		cfg.Dump.PlainHeader = true
	}
	if *noSeparateHeader {
		cfg.Dump.SeparateHeaderFile = false
	}
	if *noDedupTx {
		cfg.Dump.DedupTransactions = false
	}

	log, err := bglog.New(cfg.Logging.Dev)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	m := metrics.New()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, m, log)
	}

	rpc := rpcclient.New(
		fmt.Sprintf("http://%s:%d", cfg.Node.Host, cfg.Node.Port),
		cfg.Node.RPCUser, cfg.Node.RPCPass,
		time.Duration(cfg.Node.TimeoutMS)*time.Millisecond,
		rpcclient.WithRetry(cfg.Node.RetryCount, time.Duration(cfg.Node.RetryWaitS)*time.Second),
		rpcclient.WithObservability(m.RPCCalls, m.RPCLatency),
	)
	defer rpc.Close()
	client := node.New(rpc)
	pool := node.NewPool(client, cfg.Node.PoolSize)

	index := model.NewHybridIndex(filepath.Join(*out, ".index"), 1_000_000)
	defer index.Close() //nolint:errcheck
	resolver := model.New(index, pool, log)

	writer, err := dump.Open(*out, cfg.Dump)
	if err != nil {
		return err
	}
	defer writer.Close() //nolint:errcheck

	var checkpoint *dump.Checkpoint
	if *runID != "" {
		checkpoint, err = dump.ResumeCheckpoint(*out, *runID)
	} else {
		checkpoint, err = dump.OpenCheckpoint(*out)
	}
	if err != nil {
		return err
	}
	defer checkpoint.Close() //nolint:errcheck

	if *runID != "" {
		if h, hash, ok, lastErr := checkpoint.Last(checkpoint.RunID()); lastErr != nil {
			return lastErr
		} else if ok {
			log.Infow("resuming from checkpoint", "run_id", *runID, "height", h, "hash", hash)
			*from = h + 1
		}
	}
	log.Infow("starting export", "run_id", checkpoint.RunID(), "from", *from, "to", *to)

	ctx := context.Background()
	progress := func(fraction float64) {
		log.Infow("export progress", "fraction", fraction)
	}

	w := walker.New(client, *from, *to, progress)
	err = w.Walk(ctx, func(blk walker.Block) error {
		normalized, err := resolver.Resolve(ctx, blk)
		if err != nil {
			return err
		}
		if err := writer.WriteBlock(normalized); err != nil {
			return err
		}
		m.BlocksIngested.Inc()
		return checkpoint.Advance(blk.Height, blk.Hash)
	})
	if err != nil {
		return err
	}

	log.Infow("running dedup post-pass")
	return dump.PostProcess(*out, cfg.Dump)
}

func runComputeEntities(args []string) error {
	fs := flag.NewFlagSet("compute-entities", flag.ExitOnError)
	in := fs.String("in", "", "dump directory to resolve entities over")
	configFile := fs.String("config", "", "path to a config file (optional)")
	_ = fs.Bool("sort-input", true, "accepted for CLI compatibility; the resolver always sorts its own inputs")
	sqliteAudit := fs.Bool("sqlite-audit", false, "also mirror the address->entity assignment into a SQLite database")
	includeUnspentSingletons := fs.Bool("include-unspent-singletons", false, "give every address a singleton entity even if never observed as a spent input")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return bgerr.New(bgerr.KindMalformedRecord, "compute-entities requires --in DIR", nil)
	}

	cfg, err := bgconfig.Load(*configFile)
	if err != nil {
		return err
	}
	log, err := bglog.New(cfg.Logging.Dev)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	r := entity.New(entity.Config{
		Dir:                      *in,
		Delimiter:                cfg.Dump.Delimiter,
		InlineHeader:             !cfg.Dump.SeparateHeaderFile,
		SQLiteAudit:              *sqliteAudit || cfg.Entity.SQLiteAudit,
		IncludeUnspentSingletons: *includeUnspentSingletons || cfg.Entity.IncludeUnspentSingletons,
	})
	result, err := r.Resolve()
	if err != nil {
		return err
	}
	log.Infow("entity resolution complete", "addresses", result.Addresses, "entities", result.Entities)
	return nil
}

// runInspectBlock fetches and prints a single block by hash, for ad-hoc
// debugging. Unlike export, it never touches the dump pipeline and supports
// the REST transport (SPEC_FULL.md Part D.2) alongside the default
// JSON-RPC one — the only command in this tree that does.
func runInspectBlock(args []string) error {
	fs := flag.NewFlagSet("inspect-block", flag.ExitOnError)
	configFile := fs.String("config", "", "path to a config file (optional)")
	transport := fs.String("transport", "", "override node.transport for this call (\"rpc\" or \"rest\")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return bgerr.New(bgerr.KindMalformedRecord, "inspect-block requires exactly one <hash> argument", nil)
	}
	hash := fs.Arg(0)

	cfg, err := bgconfig.Load(*configFile)
	if err != nil {
		return err
	}
	transportMode := cfg.Node.Transport
	if *transport != "" {
		transportMode = *transport
	}

	rpc := rpcclient.New(
		fmt.Sprintf("http://%s:%d", cfg.Node.Host, cfg.Node.Port),
		cfg.Node.RPCUser, cfg.Node.RPCPass,
		time.Duration(cfg.Node.TimeoutMS)*time.Millisecond,
		rpcclient.WithRetry(cfg.Node.RetryCount, time.Duration(cfg.Node.RetryWaitS)*time.Second),
	)
	defer rpc.Close()
	client := node.New(rpc)

	block, err := client.InspectBlock(context.Background(), hash, transportMode)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return bgerr.New(bgerr.KindMalformedRecord, "failed to encode block for display", err)
	}
	fmt.Println(string(encoded))
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, log *bglog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorw("metrics server stopped", "error", err)
	}
}

