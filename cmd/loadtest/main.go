package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
	"github.com/vladislavdragonenkov/mediashop/internal/stock"
	"github.com/vladislavdragonenkov/mediashop/internal/storage/memory"
)

// Нагрузочный сценарий для Stock Ledger: много воркеров конкурируют за
// один товар через условные записи и считают, как делится исход между
// успехом, конфликтом версий и нехваткой стока. Инвариант для проверки:
// успешных резервов ровно столько, сколько было стока.

type config struct {
	concurrency int
	attempts    int
	onHand      int
	qty         int
	maxRetries  int
	baseDelay   time.Duration
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time      `json:"started_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Attempts        int64          `json:"attempts"`
	Reserved        int64          `json:"reserved"`
	Insufficient    int64          `json:"insufficient"`
	Conflicts       int64          `json:"version_conflicts"`
	Errors          int64          `json:"errors"`
	RPS             float64        `json:"rps"`
	LatencyMs       latencySummary `json:"latency_ms"`
	StockConsistent bool           `json:"stock_consistent"`
}

type collector struct {
	mu           sync.Mutex
	reserved     int64
	insufficient int64
	conflicts    int64
	errors       int64
	latencies    []float64
}

func (c *collector) record(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil:
		c.reserved++
	case domain.IsInsufficientStock(err):
		c.insufficient++
	case domain.IsVersionConflict(err):
		c.conflicts++
	default:
		c.errors++
	}
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func parseConfig() (config, error) {
	var cfg config
	flag.IntVar(&cfg.concurrency, "concurrency", 50, "number of concurrent workers")
	flag.IntVar(&cfg.attempts, "attempts", 500, "total reservation attempts")
	flag.IntVar(&cfg.onHand, "on-hand", 100, "initial stock of the contended product")
	flag.IntVar(&cfg.qty, "qty", 1, "quantity per reservation")
	flag.IntVar(&cfg.maxRetries, "max-retries", 5, "retry budget per attempt on version conflicts")
	flag.DurationVar(&cfg.baseDelay, "base-delay", time.Millisecond, "base backoff delay between retries")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.attempts <= 0 {
		return cfg, errors.New("attempts must be > 0")
	}
	if cfg.onHand < 0 {
		return cfg, errors.New("on-hand must be >= 0")
	}
	if cfg.qty <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if cfg.maxRetries <= 0 {
		return cfg, errors.New("max-retries must be > 0")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	products := memory.NewProductRepository()
	reservations := memory.NewReservationRepository()

	productID := "load-" + uuid.NewString()
	now := time.Now().UTC()
	if err := products.Create(domain.Product{
		ID:         productID,
		Title:      "Load Test Product",
		Media:      domain.MediaTypeBook,
		PriceMinor: 1000,
		OnHand:     int32(cfg.onHand),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "seed product: %v\n", err)
		os.Exit(1)
	}

	ledger := stock.NewLedger(
		products,
		reservations,
		stock.WithLogger(logger.WithField("component", "loadtest")),
		stock.WithRetry(cfg.maxRetries, cfg.baseDelay),
	)

	stats := &collector{}
	jobs := make(chan int)
	var wg sync.WaitGroup

	startedAt := time.Now()
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for job := range jobs {
				orderID := fmt.Sprintf("load-order-%d-%d", worker, job)
				attemptStart := time.Now()
				_, err := ledger.ReserveWithRetry(productID, int32(cfg.qty), orderID)
				stats.record(time.Since(attemptStart), err)
			}
		}(i)
	}

	for i := 0; i < cfg.attempts; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	duration := time.Since(startedAt)

	product, err := products.Get(productID)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read product after run: %v\n", err)
		os.Exit(1)
	}

	result := buildReport(stats, startedAt, duration, cfg, product.OnHand)
	printReport(result, product.OnHand)

	if cfg.outputPath != "" {
		if err := writeReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}

	if !result.StockConsistent {
		os.Exit(1)
	}
}

func buildReport(stats *collector, startedAt time.Time, duration time.Duration, cfg config, remaining int32) report {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	expectedRemaining := int64(cfg.onHand) - stats.reserved*int64(cfg.qty)

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Attempts:        int64(cfg.attempts),
		Reserved:        stats.reserved,
		Insufficient:    stats.insufficient,
		Conflicts:       stats.conflicts,
		Errors:          stats.errors,
		LatencyMs:       buildLatencySummary(stats.latencies),
		StockConsistent: int64(remaining) == expectedRemaining,
	}
	if duration > 0 {
		result.RPS = float64(result.Attempts) / duration.Seconds()
	}

	return result
}

func printReport(result report, remaining int32) {
	fmt.Println("Stock ledger load test summary")
	fmt.Printf("attempts=%d reserved=%d insufficient=%d conflicts=%d errors=%d\n",
		result.Attempts, result.Reserved, result.Insufficient, result.Conflicts, result.Errors)
	fmt.Printf("duration=%.2fs rps=%.2f remaining_on_hand=%d consistent=%t\n",
		result.DurationSeconds, result.RPS, remaining, result.StockConsistent)
	fmt.Printf("latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.LatencyMs.Min,
		result.LatencyMs.Avg,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)
}

func writeReport(path string, result report) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
