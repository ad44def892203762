// Command memdctl exercises a memsys.Engine end-to-end: a synthetic
// load generator, a stats dump, and a read-only debug HTTP endpoint.
package main

import (
	"fmt"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"
	"github.com/urfave/cli"
	"github.com/valyala/fasthttp"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
	"golang.org/x/sync/errgroup"

	"github.com/ais-cache/memd/3rdparty/glog"
	"github.com/ais-cache/memd/cmn"
	"github.com/ais-cache/memd/memsys"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	app := cli.NewApp()
	app.Name = "memdctl"
	app.Usage = "drive a memsys.Engine for load-testing and inspection"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "v", Usage: "trace verbosity applied to every memsys subsystem (0 disables)"},
	}
	app.Before = func(c *cli.Context) error {
		level := glog.Level(c.Int("v"))
		for _, m := range []glog.Smodule{glog.SmoduleMemsys, glog.SmoduleSlab, glog.SmoduleSma} {
			glog.SetVerbosity(m, level)
		}
		return nil
	}
	app.Commands = []cli.Command{
		loadCmd,
		statsCmd,
		serveCmd,
	}
	defer glog.Flush()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "memdctl:", err)
		os.Exit(1)
	}
}

func newEngineFromFlags(c *cli.Context) (*memsys.Engine, error) {
	return memsys.NewEngine(memsys.Config{
		MemLimit:    int64(c.Int("mem-limit-mb")) * cmn.MiB,
		ItemSizeMax: int64(c.Int("item-size-max-kb")) * cmn.KiB,
		Prealloc:    c.Bool("prealloc"),
	})
}

func init() {
	cli.VersionFlag = cli.BoolFlag{Name: "version"}
}

var globalFlags = []cli.Flag{
	cli.IntFlag{Name: "mem-limit-mb", Value: 64, Usage: "engine mem_limit, MiB"},
	cli.IntFlag{Name: "item-size-max-kb", Value: 1024, Usage: "engine item_size_max, KiB"},
	cli.BoolFlag{Name: "prealloc", Usage: "pre-allocate the arena's region up front"},
}

var loadCmd = cli.Command{
	Name:  "load",
	Usage: "run N concurrent clients allocating/freeing random-sized buffers",
	Flags: append(globalFlags,
		cli.IntFlag{Name: "clients", Value: 8},
		cli.IntFlag{Name: "ops", Value: 2000, Usage: "alloc/free pairs per client"},
		cli.IntFlag{Name: "max-size", Value: 64 * 1024},
	),
	Action: loadHandler,
}

func loadHandler(c *cli.Context) error {
	engine, err := newEngineFromFlags(c)
	if err != nil {
		return err
	}
	runID, _ := shortid.Generate()
	clients := c.Int("clients")
	ops := c.Int("ops")
	maxSize := c.Int("max-size")

	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(clients*ops),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("run %s", runID), decor.WC{W: len(runID) + 6, C: decor.DSyncWidthR}),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)),
	)

	var g errgroup.Group
	var mu sync.Mutex // guards bar.Increment(), which is not itself safe for concurrent callers
	for i := 0; i < clients; i++ {
		g.Go(func() error {
			rng := newSizeGen(uint64(i+1), maxSize)
			for n := 0; n < ops; n++ {
				size := rng.next()
				id := engine.Classify(size)
				if id == 0 {
					continue
				}
				buf, err := engine.Alloc(size)
				if err != nil {
					// OutOfMemory is the caller's to handle — a load
					// generator just counts it as backpressure.
					mu.Lock()
					bar.Increment()
					mu.Unlock()
					continue
				}
				engine.Free(buf, size, id)
				mu.Lock()
				bar.Increment()
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	progress.Wait()

	st := make(memsys.StatsMap)
	engine.Stats(st)
	out, _ := json.MarshalIndent(st, "", "  ")
	fmt.Println(string(out))
	return nil
}

// sizeGen is a minimal xorshift generator so the load command doesn't
// need math/rand's global lock under concurrent clients.
type sizeGen struct {
	state uint64
	max   int
}

func newSizeGen(seed uint64, max int) *sizeGen {
	if seed == 0 {
		seed = 1
	}
	return &sizeGen{state: seed, max: max}
}

func (g *sizeGen) next() int {
	g.state ^= g.state << 13
	g.state ^= g.state >> 7
	g.state ^= g.state << 17
	if g.max <= 0 {
		return 0
	}
	return int(g.state % uint64(g.max))
}

var statsCmd = cli.Command{
	Name:   "stats",
	Usage:  "print one stats() snapshot of a freshly initialized engine",
	Flags:  globalFlags,
	Action: statsHandler,
}

func statsHandler(c *cli.Context) error {
	engine, err := newEngineFromFlags(c)
	if err != nil {
		return err
	}
	st := make(memsys.StatsMap)
	engine.Stats(st)
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "expose stats()/shortage_level() over a read-only debug HTTP endpoint",
	Flags: append(globalFlags,
		cli.StringFlag{Name: "listen", Value: ":9871"},
	),
	Action: serveHandler,
}

// serveHandler is diagnostics-only: it never accepts writes, and is not
// the cache's wire protocol.
func serveHandler(c *cli.Context) error {
	engine, err := newEngineFromFlags(c)
	if err != nil {
		return err
	}
	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/stats":
			st := make(memsys.StatsMap)
			engine.Stats(st)
			ctx.SetContentType("application/json")
			enc := json.NewEncoder(ctx)
			_ = enc.Encode(st)
		case "/shortage_level":
			fmt.Fprintf(ctx, "%d\n", engine.ShortageLevel())
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
	fmt.Fprintf(os.Stderr, "memdctl serve: listening on %s (GET /stats, /shortage_level)\n", c.String("listen"))
	return fasthttp.ListenAndServe(c.String("listen"), handler)
}
