package material

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/institutohope/platform/core"
)

// Material types
const (
	TypePDF      = "PDF"
	TypeVideo    = "Video"
	TypeSimulado = "Simulado"
)

// Difficulties
const (
	DifficultyBasico        = "Básico"
	DifficultyIntermediario = "Intermediário"
	DifficultyAvancado      = "Avançado"
)

// Local storage keys.
const (
	KeyMaterials       = "materials"
	KeyLastDailyUpdate = "last-daily-update"
)

// Material is a study resource in the library.
type Material struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Subject    string `json:"subject"`
	URL        string `json:"url"`
	Program    string `json:"program"`
	Difficulty string `json:"difficulty"`
}

// Seed is the catalog a fresh install starts with.
func Seed() []Material {
	return []Material{
		{
			ID: "mat-001", Title: "Logaritmos: Do Básico ao Avançado",
			Type: TypeVideo, Subject: "Matemática", URL: "https://youtube.com",
			Program: "Pré-Militar", Difficulty: DifficultyIntermediario,
		},
		{
			ID: "sim-001", Title: "Simulado ESA 2024 - Gabaritado",
			Type: TypeSimulado, Subject: "Geral", URL: "#",
			Program: "Pré-Militar", Difficulty: DifficultyAvancado,
		},
	}
}

// TopicSource produces fresh study topics for a target exam. Implementations
// must be offline-safe: on failure return an empty slice, not an error the
// library would have to surface.
type TopicSource func(ctx context.Context, targetExam string) []Material

// Library owns the material catalog. It persists to the device store and
// refreshes itself from a topic source at most once per calendar day.
type Library struct {
	local  core.KVStore
	logger core.Logger

	mu    sync.RWMutex
	items []Material
}

func NewLibrary(local core.KVStore, logger core.Logger) *Library {
	lib := &Library{local: local, logger: logger}
	if raw, ok := local.Get(KeyMaterials); ok {
		var items []Material
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			logger.Error(fmt.Sprintf("parsing stored materials: %v", err), err)
		} else {
			lib.items = items
			return lib
		}
	}
	lib.items = Seed()
	return lib
}

// Materials returns a copy of the catalog.
func (l *Library) Materials() []Material {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Material, len(l.items))
	copy(out, l.items)
	return out
}

// Add appends an uploaded resource and persists the catalog.
func (l *Library) Add(m Material) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, m)
	return l.persistLocked()
}

// Recommended picks materials for a student. Plain prefix selection for now.
// TODO: rank by the student's weak subjects once usage data accumulates.
func (l *Library) Recommended(weakSubjects []string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 3
	if len(l.items) < n {
		n = len(l.items)
	}
	ids := make([]string, 0, n)
	for _, m := range l.items[:n] {
		ids = append(ids, m.ID)
	}
	return ids
}

// RefreshDaily pulls fresh topics from src and appends them to the catalog,
// at most once per calendar day. Returns the topics added this call.
func (l *Library) RefreshDaily(ctx context.Context, src TopicSource, targetExam string, now time.Time) ([]Material, error) {
	today := now.UTC().Format("2006-01-02")
	if last, ok := l.local.Get(KeyLastDailyUpdate); ok && last == today {
		return nil, nil
	}

	fresh := src(ctx, targetExam)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(fresh) > 0 {
		l.items = append(l.items, fresh...)
		if err := l.persistLocked(); err != nil {
			return nil, err
		}
	}
	if err := l.local.Set(KeyLastDailyUpdate, today); err != nil {
		return nil, pkgerrors.Wrap(err, "stamping daily update")
	}
	return fresh, nil
}

// persistLocked rewrites the full catalog. Callers hold l.mu.
func (l *Library) persistLocked() error {
	b, err := json.Marshal(l.items)
	if err != nil {
		return pkgerrors.Wrap(err, "marshaling materials")
	}
	if err = l.local.Set(KeyMaterials, string(b)); err != nil {
		return pkgerrors.Wrap(err, "persisting materials")
	}
	return nil
}
