package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Config struct {
	TargetURL      string
	Collections    string
	Limit          int
	Pages          int
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	BBoxCount      int
	Extent         string
	OutputPrefix   string
	RequestTimeout time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/search", "Search endpoint URL")
	flag.StringVar(&cfg.Collections, "collections", "", "Comma separated collections (empty searches all)")
	flag.IntVar(&cfg.Limit, "limit", 50, "Page size")
	flag.IntVar(&cfg.Pages, "pages", 3, "Next links followed per search (1 fetches only the first page)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.BBoxCount, "bboxes", 128, "Distinct bboxes in pool")
	flag.StringVar(&cfg.Extent, "extent", "-180,-90,180,90", "Extent the bboxes are drawn from")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/search", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.Parse()
	return cfg
}

type BBox struct{ X1, Y1, X2, Y2 float64 }

func (b BBox) String() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", b.X1, b.Y1, b.X2, b.Y2)
}

func parseExtent(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("extent needs 4 numbers, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("extent %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return BBox{}, fmt.Errorf("extent %q is empty", s)
	}
	return BBox{v[0], v[1], v[2], v[3]}, nil
}

// makeBBoxes draws count boxes inside extent, each between 1% and 10% of
// its width and height.
func makeBBoxes(extent BBox, count int, r *rand.Rand) []BBox {
	ew, eh := extent.X2-extent.X1, extent.Y2-extent.Y1
	out := make([]BBox, 0, count)
	for len(out) < count {
		w := ew * (0.01 + r.Float64()*0.09)
		h := eh * (0.01 + r.Float64()*0.09)
		x := extent.X1 + r.Float64()*(ew-w)
		y := extent.Y1 + r.Float64()*(eh-h)
		out = append(out, BBox{x, y, x + w, y + h})
	}
	return out
}

// one sample per search, covering every page it fetched
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Pages     int
	Items     int
	Status    int
	ErrorMsg  string
	BoxIndex  int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalSearches int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	Pages         int64     `json:"pages"`
	Items         int64     `json:"items"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	Limit         int       `json:"limit"`
	MaxPages      int       `json:"max_pages"`
	TargetURL     string    `json:"target"`
}

type aggregatedResult struct {
	total, success, errors int64
	pages, items           int64
	latMs                  []float64
}

type pageBody struct {
	Features []json.RawMessage `json:"features"`
	Links    []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// search fetches the first page and follows next links up to maxPages.
func search(ctx context.Context, c *http.Client, href string, maxPages int, s *sample) {
	for href != "" && s.Pages < maxPages {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
		req.Header.Set("Accept", "application/geo+json")
		resp, err := c.Do(req)
		if err != nil {
			s.ErrorMsg = err.Error()
			return
		}
		s.Status = resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
			return
		}
		var p pageBody
		err = json.NewDecoder(resp.Body).Decode(&p)
		_ = resp.Body.Close()
		if err != nil {
			s.ErrorMsg = "decode: " + err.Error()
			return
		}
		s.Pages++
		s.Items += len(p.Features)
		href = ""
		for _, l := range p.Links {
			if l.Rel == "next" {
				href = l.Href
			}
		}
	}
}

func main() {
	cfg := loadConfig()
	if cfg.Pages < 1 {
		cfg.Pages = 1
	}
	extent, err := parseExtent(cfg.Extent)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := fmt.Sprintf("%s_%s", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))

	seed := time.Now().UnixNano()
	bboxes := makeBBoxes(extent, cfg.BBoxCount, rand.New(rand.NewSource(seed)))
	if len(bboxes) == 0 {
		log.Fatalf("no bboxes generated")
	}
	imax := uint64(len(bboxes)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "pages", "items", "status", "error", "bbox_idx"})
		var agg aggregatedResult
		agg.latMs = make([]float64, 0, 1<<16)
		for s := range samplesChan {
			agg.total++
			agg.pages += int64(s.Pages)
			agg.items += int64(s.Items)
			if s.ErrorMsg == "" {
				agg.success++
				agg.latMs = append(agg.latMs, float64(s.Latency.Microseconds())/1000.0)
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Pages),
				strconv.Itoa(s.Items),
				strconv.Itoa(s.Status),
				s.ErrorMsg,
				strconv.Itoa(s.BoxIndex),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s collections=%q dur=%s conc=%d limit=%d pages=%d bboxes=%d",
		cfg.TargetURL, cfg.Collections, cfg.Duration, cfg.Concurrency, cfg.Limit, cfg.Pages, len(bboxes))

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			zipfDist := rand.NewZipf(rand.New(rand.NewSource(seed+int64(id)+1)), cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				idx := int(zipfDist.Uint64())
				u, err := url.Parse(cfg.TargetURL)
				if err != nil {
					log.Printf("bad target: %v", err)
					return
				}
				q := u.Query()
				q.Set("bbox", bboxes[idx].String())
				q.Set("limit", strconv.Itoa(cfg.Limit))
				if cfg.Collections != "" {
					q.Set("collections", cfg.Collections)
				}
				u.RawQuery = q.Encode()

				s := sample{Timestamp: time.Now(), BoxIndex: idx}
				search(ctx, httpClient, u.String(), cfg.Pages, &s)
				s.Latency = time.Since(s.Timestamp)
				if ctx.Err() != nil {
					return
				}
				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	run := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalSearches: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		Pages:         agg.pages,
		Items:         agg.items,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		Limit:         cfg.Limit,
		MaxPages:      cfg.Pages,
		TargetURL:     cfg.TargetURL,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(run)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d pages=%d items=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.errors, agg.pages, agg.items, run.ThroughputRPS, run.P50Ms, run.P95Ms, run.P99Ms)
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
