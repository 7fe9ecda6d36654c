package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"heapstore/pkg/config"
	"heapstore/pkg/database"
	"heapstore/pkg/dberror"
	"heapstore/pkg/debug/heapreader"
	"heapstore/pkg/debug/logreader"
	"heapstore/pkg/debug/ui"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/brianvoe/gofakeit/v7"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const usage = `heapstore: page buffer pool and heap file storage engine

Usage:
  heapstore bench [-config cfg.yaml] [-data dir] [-workers 4] [-rows 1000] [-batch 10]
  heapstore dump  -file t.dat -schema int,string [-page-size 4096] [-plain]
  heapstore log   [-file wal.log | -config cfg.yaml] [-plain]

dump and log open an interactive browser when stdout is a terminal.
-plain prints the whole file instead.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "bench":
		err = runBench(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	case "log":
		err = runLog(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads path, or the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

type benchOptions struct {
	configPath string
	dataDir    string
	policy     string
	table      string
	workers    int
	rows       int
	batch      int
	seed       uint64
}

func runBench(args []string) error {
	var opts benchOptions
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.dataDir, "data", "", "data directory (overrides the config)")
	fs.StringVar(&opts.policy, "policy", "", "eviction policy, fifo or lru (overrides the config)")
	fs.StringVar(&opts.table, "table", "people", "table to insert into")
	fs.IntVar(&opts.workers, "workers", 4, "concurrent writers")
	fs.IntVar(&opts.rows, "rows", 1000, "rows to insert in total")
	fs.IntVar(&opts.batch, "batch", 10, "rows per transaction")
	fs.Uint64Var(&opts.seed, "seed", 1, "row generator seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.workers < 1 || opts.rows < 1 || opts.batch < 1 {
		return fmt.Errorf("workers, rows and batch must be positive")
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.policy != "" {
		cfg.EvictionPolicy = opts.policy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	defer logging.Close()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	td, err := benchTable(db, opts.table)
	if err != nil {
		return err
	}

	var inserted, retries atomic.Int64
	start := time.Now()

	var g errgroup.Group
	for w := 0; w < opts.workers; w++ {
		share := opts.rows / opts.workers
		if w < opts.rows%opts.workers {
			share++
		}
		g.Go(func() error {
			faker := gofakeit.New(opts.seed + uint64(w))
			for done := 0; done < share; {
				n := min(opts.batch, share-done)
				rows := make([]*tuple.Tuple, n)
				for i := range rows {
					row, err := tuple.FromValues(td, faker.Int32(), faker.Name())
					if err != nil {
						return err
					}
					rows[i] = row
				}

				attempts, err := insertBatch(db, opts.table, rows)
				retries.Add(int64(attempts - 1))
				if err != nil {
					return err
				}
				inserted.Add(int64(n))
				done += n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Println(renderBenchSummary(db, opts, inserted.Load(), retries.Load(), elapsed))
	return nil
}

// benchTable returns the schema of table, creating it as (id INT, name STRING)
// when it does not exist yet.
func benchTable(db *database.Database, table string) (*tuple.TupleDescription, error) {
	if td, err := db.TupleDesc(table); err == nil {
		return td, nil
	}
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	if err != nil {
		return nil, err
	}
	if _, err := db.CreateTable(table, td); err != nil {
		return nil, err
	}
	return td, nil
}

// insertBatch inserts rows in one transaction, starting over whenever the
// transaction is aborted by a lock timeout or deadlock. It returns the number
// of attempts made.
func insertBatch(db *database.Database, table string, rows []*tuple.Tuple) (int, error) {
	for attempt := 1; ; attempt++ {
		tx := db.Begin()
		err := func() error {
			for _, row := range rows {
				if err := db.Insert(tx, table, row); err != nil {
					return err
				}
			}
			return nil
		}()
		if err == nil {
			err = db.Commit(tx)
			if err == nil {
				return attempt, nil
			}
		} else {
			_ = db.Abort(tx)
		}

		if !dberror.IsTransactionAborted(err) {
			return attempt, err
		}
		time.Sleep(time.Duration(attempt) * time.Millisecond)
	}
}

func renderBenchSummary(db *database.Database, opts benchOptions, inserted, retries int64, elapsed time.Duration) string {
	info := db.Info()
	rate := float64(inserted) / elapsed.Seconds()

	logSize := "-"
	if st, err := os.Stat(db.Config().ResolvedLogPath()); err == nil {
		logSize = humanize.Bytes(uint64(st.Size()))
	}

	lines := []string{
		ui.RenderTitle("heapstore bench"),
		ui.RenderKV("table", opts.table, "workers", fmt.Sprint(opts.workers), "batch", fmt.Sprint(opts.batch)),
		ui.RenderKV("rows", humanize.Comma(inserted), "retries", humanize.Comma(retries), "elapsed", elapsed.Round(time.Millisecond).String()),
		ui.RenderKV("throughput", fmt.Sprintf("%s rows/s", humanize.Comma(int64(rate)))),
		ui.RenderKV("committed", humanize.Comma(info.Committed), "aborted", humanize.Comma(info.Aborted)),
		ui.RenderKV("log", logSize, "policy", db.Config().EvictionPolicy),
		"",
		ui.MutedStyle.Render(info.Pool.String()),
	}
	return ui.BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// interactive reports whether the readers should take over the terminal.
func interactive(plain bool) bool {
	if plain {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func browse(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	file := fs.String("file", "", "heap file to render")
	schema := fs.String("schema", "", "comma separated column types, e.g. int,string")
	pageSize := fs.Int("page-size", config.DefaultPageSize, "page size the file was written with")
	plain := fs.Bool("plain", false, "print every page instead of browsing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" || *schema == "" {
		return fmt.Errorf("dump needs -file and -schema")
	}

	td, err := tuple.ParseSchema(strings.ToLower(*schema))
	if err != nil {
		return err
	}

	page.SetPageSize(*pageSize)
	path := primitives.Filepath(*file)
	if !interactive(*plain) {
		out, err := heapreader.Render(path, td, *pageSize)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	pages, err := heapreader.Inspect(path, td)
	if err != nil {
		return err
	}
	return browse(heapreader.NewModel(path.String(), td, pages, *pageSize))
}

func runLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	file := fs.String("file", "", "log file to render")
	configPath := fs.String("config", "", "YAML configuration whose log to render")
	plain := fs.Bool("plain", false, "print every record instead of browsing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *file
	if path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		path = cfg.ResolvedLogPath()
	}

	if !interactive(*plain) {
		out, err := logreader.Render(primitives.Filepath(path))
		fmt.Print(out)
		return err
	}

	records, err := logreader.Load(primitives.Filepath(path))
	if err != nil && !errors.Is(err, dberror.ErrStorageInvalid) {
		return err
	}
	return browse(logreader.NewModel(path, records, err))
}
