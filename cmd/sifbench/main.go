// Command sifbench wires C1-C6 together into a runnable word-frequency
// job: it splits a set of input files across local workers, pre-reduces
// each worker's word counts in a partitioned reduce table, shuffles the
// partial counts through the channel multiplexer, and merges them back
// into one count per word. It is a harness, not a bootstrap system —
// host discovery and CLI argument parsing are deliberately minimal,
// adapted in shape from the teacher's cluster.worker lifecycle
// (connect, run to completion, report) without its gRPC control plane.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/spf13/afero"

	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/blockpool"
	"github.com/sifdata/sif/channel"
	"github.com/sifdata/sif/config"
	"github.com/sifdata/sif/fsadapter"
	"github.com/sifdata/sif/group/tcp"
	"github.com/sifdata/sif/lines"
	"github.com/sifdata/sif/reduce"
	"github.com/sifdata/sif/slog"
	"github.com/sifdata/sif/stats"
)

func main() {
	glob := flag.String("input", "*.txt", "glob pattern of input files")
	workers := flag.Int("workers", 4, "local workers")
	listenAddr := flag.String("listen", "127.0.0.1:0", "address this single-host process listens on")
	flag.Parse()

	cfg := &config.Config{NumHosts: 1, WorkersPerHost: *workers}
	config.EnsureDefaults(cfg)

	lg := slog.New(log.New(os.Stderr, "", log.LstdFlags), slog.InfoLevel)

	totals, err := run(cfg, fsadapter.New(afero.NewOsFs()), *glob, *listenAddr, lg)
	if err != nil {
		lg.Logf(slog.FatalLevel, "sifbench: %v", err)
		os.Exit(1)
	}

	words := make([]string, 0, len(totals))
	for k := range totals {
		words = append(words, k)
	}
	sort.Slice(words, func(i, j int) bool {
		if totals[words[i]] != totals[words[j]] {
			return totals[words[i]] > totals[words[j]]
		}
		return words[i] < words[j]
	})
	for _, word := range words {
		fmt.Printf("%d\t%s\n", totals[word], word)
	}
}

// run drives one word-count job to completion and returns the merged
// per-word totals, factored out of main so it can be exercised directly
// against an in-memory filesystem.
func run(cfg *config.Config, fs *fsadapter.FS, glob, listenAddr string, lg *slog.Logger) (map[string]int, error) {
	grp, err := tcp.Dial(tcp.Options{MyHostRank: 0, Peers: []string{""}, ListenAddr: listenAddr})
	if err != nil {
		return nil, err
	}
	pool := blockpool.New(nil)
	mp := channel.New(grp, cfg.WorkersPerHost, pool)

	paths, err := fs.Glob(glob)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("sifbench: no files match %q", glob)
	}
	infos := make([]fsadapter.Info, len(paths))
	for i, p := range paths {
		info, err := fs.FileSize(p)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}

	// Every worker allocates the shared word-count channel's id in the
	// same deterministic order (spec §4.5's cooperative invariant), so
	// each ends up with the same id without any coordination message.
	channelID := mp.AllocateChannelID(0)
	for w := 1; w < cfg.WorkersPerHost; w++ {
		mp.AllocateChannelID(uint32(w))
	}

	pairCodec := reduce.NewPairCodec(block.StringCodec{}, block.IntCodec{})

	var mu sync.Mutex
	totals := make(map[string]int)
	errs := make(chan error, cfg.WorkersPerHost)

	var wg sync.WaitGroup
	for w := 0; w < cfg.WorkersPerHost; w++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := runWorker(rank, cfg, channelID, mp, fs, infos, pairCodec, totals, &mu, lg); err != nil {
				errs <- fmt.Errorf("worker %d: %w", rank, err)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return totals, nil
}

func runWorker(
	rank int,
	cfg *config.Config,
	channelID uint64,
	mp *channel.Multiplexer,
	fs *fsadapter.FS,
	infos []fsadapter.Info,
	pairCodec reduce.PairCodec,
	totals map[string]int,
	totalsMu *sync.Mutex,
	lg *slog.Logger,
) error {
	workerID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	st := &stats.WorkerStatistics{}
	st.Start()
	lg.Logf(slog.InfoLevel, "worker %d (%s) starting", rank, workerID)

	assignment, err := lines.Assign(infos, cfg.WorkersPerHost, rank)
	if err != nil {
		return err
	}

	ch := mp.GetOrCreateChannel(channelID, uint32(rank))
	writers, err := ch.OpenWriters(cfg.DefaultBlockSize, pairCodec, false)
	if err != nil {
		return err
	}
	table, err := reduce.NewProbing(reduce.Config{
		P:                     cfg.NumWorkers(),
		Sentinel:              "",
		InitialScale:          cfg.ReduceInitialScale,
		ResizeScale:           cfg.ReduceResizeScale,
		MaxPartitionFillRatio: cfg.MaxPartitionFillRate,
		MaxTableItems:         cfg.MaxTableItems,
		MaxProbeLength:        64,
		KeyOf:                 func(item interface{}) interface{} { return item.(string) },
		ValueOf:               func(interface{}) interface{} { return 1 },
		Reduce:                func(a, b interface{}) interface{} { return a.(int) + b.(int) },
		Hash:                  reduce.HashBytes(func(key interface{}) []byte { return []byte(key.(string)) }),
		PairMode:              true,
	}, writers)
	if err != nil {
		return err
	}

	st.BeginInsert()
	var inserted int64
	insertLine := func(line string) error {
		for _, word := range strings.Fields(line) {
			if err := table.Insert(strings.ToLower(word)); err != nil {
				return err
			}
			inserted++
		}
		return nil
	}
	for _, span := range assignment.Spans {
		lns, err := lines.ReadSpan(fs, span)
		if err != nil {
			return err
		}
		for _, line := range lns {
			if err := insertLine(line); err != nil {
				return err
			}
		}
	}
	for _, path := range assignment.WholeFiles {
		lns, err := lines.ReadWholeFile(fs, path)
		if err != nil {
			return err
		}
		for _, line := range lns {
			if err := insertLine(line); err != nil {
				return err
			}
		}
	}
	st.EndInsert(inserted)

	st.BeginFlush()
	itemsBefore := int64(table.NumItems())
	if err := table.CloseEmitters(); err != nil {
		return err
	}
	st.EndFlush(itemsBefore, int64(len(writers)))

	local := make(map[string]int)
	reader := ch.OpenConcatReader(pairCodec, false)
	for reader.HasNext() {
		item, err := reader.Next()
		if err != nil {
			return err
		}
		p := item.(reduce.Pair)
		local[p.Key.(string)] += p.Value.(int)
	}
	if err := reader.Close(); err != nil {
		return err
	}
	if err := ch.Close(); err != nil {
		return err
	}

	totalsMu.Lock()
	for k, v := range local {
		totals[k] += v
	}
	totalsMu.Unlock()

	lg.Logf(slog.InfoLevel, "worker %d done: inserted=%d runtime=%s insert=%s flush=%s",
		rank, st.ItemsInserted(), st.Runtime(), st.InsertTime(), st.FlushTime())
	return nil
}
