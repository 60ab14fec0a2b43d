package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/core/httpclient"
)

type Config struct {
	TargetURL       string
	Op              string
	CellRes         int
	ChildRes        int
	Meters          float64
	Strategy        string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	CellCount       int
	CellFile        string
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	TimestampFormat string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090", "boundaryd base URL")
	flag.StringVar(&cfg.Op, "op", "boundary", "Polygon operation (cell, children, buffered, boundary)")
	flag.IntVar(&cfg.CellRes, "cell-res", 8, "Resolution of generated cells")
	flag.IntVar(&cfg.ChildRes, "res", -1, "Child resolution sent with each request (-1 omits)")
	flag.Float64Var(&cfg.Meters, "meters", -1, "Buffer distance sent with each request (-1 omits)")
	flag.StringVar(&cfg.Strategy, "strategy", "", "Per-request strategy override")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.CellCount, "cells", 128, "Distinct cells in pool")
	flag.StringVar(&cfg.CellFile, "cell-file", "", "Optional cell index file (one per line) to drive the pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.StringVar(&cfg.TimestampFormat, "ts-format", "iso", "Timestamp format: iso|unix|none")
	flag.Parse()
	return cfg
}

// creates a mix of "hot" and "cold" cells for testing.
func makeCells(count, res int, r *rand.Rand) []string {
	centers := [][2]float64{
		{59.3293, 18.0686}, // Stockholm
		{57.7089, 11.9746}, // Göteborg
		{55.6050, 13.0038}, // Malmö
		{65.5848, 22.1547}, // Luleå
	}
	seen := make(map[string]struct{}, count)
	cells := make([]string, 0, count)
	add := func(lat, lon float64) {
		c, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), res)
		if err != nil {
			return
		}
		s := c.String()
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		cells = append(cells, s)
	}

	hotCount := int(math.Max(8, float64(count/4))) // at least 8 hot cells

	// generate "hot" cells around centers
	for i := 0; len(cells) < hotCount && i < hotCount*4; i++ {
		c := centers[i%len(centers)]                                 // cycle through centers
		add(c[0]+(r.Float64()-0.5)*0.20, c[1]+(r.Float64()-0.5)*0.20) // random offset
	}

	// generate remaining "cold" cells randomly over sweden
	for i := 0; len(cells) < count && i < count*4; i++ {
		add(55+r.Float64()*(66-55), 11+r.Float64()*(24-11))
	}
	return cells
}

func loadCellFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open cells: %w", err)
	}
	defer func() { _ = f.Close() }()

	var cells []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var c h3.Cell
		if err := c.UnmarshalText([]byte(line)); err != nil {
			return nil, fmt.Errorf("parse cell %q: %w", line, err)
		}
		if !c.IsValid() {
			return nil, fmt.Errorf("invalid cell %q", line)
		}
		cells = append(cells, line)
	}
	return cells, sc.Err()
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	CellIndex int
	Cell      string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Cells         int       `json:"cells"`
	CellRes       int       `json:"cell_res"`
	TargetURL     string    `json:"target"`
	Op            string    `json:"op"`
	Strategy      string    `json:"strategy,omitempty"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	switch cfg.Op {
	case "cell", "children", "buffered", "boundary":
	default:
		log.Fatalf("unknown op %q", cfg.Op)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}

	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		switch strings.ToLower(cfg.TimestampFormat) {
		case "none":
		case "unix":
			prefix = fmt.Sprintf("%s_%d", prefix, time.Now().Unix())
		default: // "iso"
			prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
		}
	}

	// precompute random workload
	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))

	var cells []string
	if strings.TrimSpace(cfg.CellFile) != "" {
		loaded, err := loadCellFile(cfg.CellFile)
		if err != nil {
			log.Printf("WARN: failed to load cells from %q: %v; falling back to synthetic cells", cfg.CellFile, err)
		} else {
			cells = loaded
			log.Printf("using %d file-driven cells from %s", len(cells), cfg.CellFile)
		}
	}

	// fallback if the cell file is disabled or failed
	if len(cells) == 0 {
		cells = makeCells(cfg.CellCount, cfg.CellRes, r)
		log.Printf("using %d synthetic cells at res %d", len(cells), cfg.CellRes)
	}

	if len(cells) == 0 {
		log.Fatalf("no cells generated")
	}

	imax := uint64(len(cells)) - 1

	httpClient := httpclient.NewOutbound()
	httpClient.Timeout = cfg.RequestTimeout

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	// Prepare output files
	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	// Collects results asynchronously
	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "cell_idx", "cell"})
		var total, successCount, errorCount int64
		latencies := make([]float64, 0, 1<<20)
		for s := range samplesChan {
			total++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				successCount++
				latencies = append(latencies, float64(s.Latency.Microseconds())/1000.0)
			} else {
				errorCount++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				fmt.Sprintf("%d", s.Status),
				s.ErrorMsg,
				fmt.Sprintf("%d", s.CellIndex),
				s.Cell,
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- aggregatedResult{total: total, success: successCount, errors: errorCount, latMs: latencies}
	}()

	target := strings.TrimRight(cfg.TargetURL, "/") + "/v1/polygon/" + cfg.Op

	startTime := time.Now()
	log.Printf("loadgen start target=%s op=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) cells=%d strategy=%q",
		target, cfg.Op, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(cells), cfg.Strategy)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)

	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()

			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v > uint64(math.MaxInt) {
					continue
				}
				idx := int(v)
				if idx >= len(cells) {
					continue
				}
				cell := cells[idx]

				u, _ := url.Parse(target)
				q := u.Query()
				q.Set("cell", cell)
				if cfg.ChildRes >= 0 {
					q.Set("res", strconv.Itoa(cfg.ChildRes))
				}
				if cfg.Meters >= 0 {
					q.Set("meters", strconv.FormatFloat(cfg.Meters, 'f', -1, 64))
				}
				if cfg.Strategy != "" {
					q.Set("strategy", cfg.Strategy)
				}
				u.RawQuery = q.Encode()

				startReq := time.Now()
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
				req.Header.Set("Accept", "application/geo+json")
				resp, err := httpClient.Do(req)
				latency := time.Since(startReq)

				result := sample{
					Timestamp: startReq,
					Latency:   latency,
					Status:    0,
					ErrorMsg:  "",
					CellIndex: idx,
					Cell:      cell,
				}

				if err != nil {
					result.ErrorMsg = err.Error()
				} else {
					result.Status = resp.StatusCode
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						result.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	// close samples channel
	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	aggResult := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(aggResult.latMs)
	p50 := percentile(aggResult.latMs, 50)
	p95 := percentile(aggResult.latMs, 95)
	p99 := percentile(aggResult.latMs, 99)

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: aggResult.total,
		SuccessCount:  aggResult.success,
		ErrorCount:    aggResult.errors,
		ThroughputRPS: float64(aggResult.total) / elapsed,
		P50Ms:         p50,
		P95Ms:         p95,
		P99Ms:         p99,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Cells:         len(cells),
		CellRes:       cfg.CellRes,
		TargetURL:     target,
		Op:            cfg.Op,
		Strategy:      cfg.Strategy,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		aggResult.total, aggResult.success, aggResult.errors, runSummary.ThroughputRPS, p50, p95, p99)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
