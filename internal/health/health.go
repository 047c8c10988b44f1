// Package health отдаёт состояние внешних зависимостей сервиса (Postgres,
// Redis, брокер) по HTTP. Пробы выполняются конкурентно с общим таймаутом,
// чтобы один зависший стор не утащил за собой весь health-ответ.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// State — агрегированное состояние сервиса или отдельной пробы.
type State string

const (
	StateOK   State = "ok"
	StateDown State = "down"
)

const defaultProbeTimeout = 2 * time.Second

// ProbeFunc проверяет одну зависимость. Возврат ошибки означает down.
type ProbeFunc func(ctx context.Context) error

// ProbeResult — результат одной пробы в составе ответа.
type ProbeResult struct {
	Name       string `json:"name"`
	State      State  `json:"state"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — полный ответ health-эндпоинта.
type Report struct {
	State         State         `json:"state"`
	Version       string        `json:"version,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Probes        []ProbeResult `json:"probes,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

type namedProbe struct {
	name  string
	probe ProbeFunc
}

// Handler собирает пробы и сервит /healthz и /readyz.
type Handler struct {
	mu      sync.RWMutex
	probes  []namedProbe
	version string
	started time.Time
	timeout time.Duration
}

// NewHandler создаёт handler без проб; сервис без внешних зависимостей
// всегда ok.
func NewHandler(version string) *Handler {
	return &Handler{
		version: version,
		started: time.Now().UTC(),
		timeout: defaultProbeTimeout,
	}
}

// Register добавляет пробу зависимости. Повторная регистрация того же имени
// заменяет пробу.
func (h *Handler) Register(name string, probe ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.probes {
		if h.probes[i].name == name {
			h.probes[i].probe = probe
			return
		}
	}
	h.probes = append(h.probes, namedProbe{name: name, probe: probe})
}

// Run выполняет все пробы конкурентно и собирает отчёт.
func (h *Handler) Run(ctx context.Context) Report {
	h.mu.RLock()
	probes := make([]namedProbe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]ProbeResult, len(probes))
	var wg sync.WaitGroup
	for i, np := range probes {
		wg.Add(1)
		go func(i int, np namedProbe) {
			defer wg.Done()

			start := time.Now()
			err := np.probe(ctx)
			result := ProbeResult{
				Name:       np.name,
				State:      StateOK,
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				result.State = StateDown
				result.Error = err.Error()
			}
			results[i] = result
		}(i, np)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	state := StateOK
	for _, result := range results {
		if result.State == StateDown {
			state = StateDown
			break
		}
	}

	return Report{
		State:         state,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Probes:        results,
		CheckedAt:     time.Now().UTC(),
	}
}

// ServeHTTP отдаёт полный отчёт. 503 при любой упавшей пробе.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())

	statusCode := http.StatusOK
	if report.State == StateDown {
		statusCode = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(report)
}

// Readiness — компактный readiness probe: 200/503 без тела отчёта.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())
	if report.State == StateDown {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
