package material_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/institutohope/platform/core/material"
	testutil "github.com/institutohope/platform/tests"
)

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV { return &memKV{m: make(map[string]string)} }

func (kv *memKV) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok
}

func (kv *memKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}

func (kv *memKV) Remove(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, key)
	return nil
}

func (kv *memKV) Clear() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m = make(map[string]string)
	return nil
}

func TestLibrary_seedsWhenEmpty(t *testing.T) {
	lib := material.NewLibrary(newMemKV(), testutil.NewLogger(t))
	items := lib.Materials()
	require.Len(t, items, 2)
	assert.Equal(t, "mat-001", items[0].ID)
}

func TestLibrary_hydratesFromStore(t *testing.T) {
	kv := newMemKV()
	stored := []material.Material{{ID: "x-1", Title: "Frações", Type: material.TypePDF, Subject: "Matemática"}}
	b, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, kv.Set(material.KeyMaterials, string(b)))

	lib := material.NewLibrary(kv, testutil.NewLogger(t))
	items := lib.Materials()
	require.Len(t, items, 1)
	assert.Equal(t, "x-1", items[0].ID)
}

func TestLibrary_addPersists(t *testing.T) {
	kv := newMemKV()
	lib := material.NewLibrary(kv, testutil.NewLogger(t))

	require.NoError(t, lib.Add(material.Material{
		ID: "up-1", Title: "Regência Verbal", Type: material.TypePDF,
		Subject: "Português", Program: "Pré-Militar", Difficulty: material.DifficultyBasico,
	}))

	raw, ok := kv.Get(material.KeyMaterials)
	require.True(t, ok)
	var stored []material.Material
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Len(t, stored, 3)
	assert.Equal(t, "up-1", stored[2].ID)
}

func TestLibrary_recommended(t *testing.T) {
	lib := material.NewLibrary(newMemKV(), testutil.NewLogger(t))
	ids := lib.Recommended(nil)
	assert.Equal(t, []string{"mat-001", "sim-001"}, ids)
}

func TestLibrary_refreshDaily_oncePerDay(t *testing.T) {
	kv := newMemKV()
	lib := material.NewLibrary(kv, testutil.NewLogger(t))
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	var calls int
	src := func(_ context.Context, exam string) []material.Material {
		calls++
		assert.Equal(t, "ESA", exam)
		return []material.Material{{ID: "auto-1", Title: "Juros Compostos", Subject: "Matemática", Type: material.TypePDF}}
	}

	added, err := lib.RefreshDaily(context.Background(), src, "ESA", now)
	require.NoError(t, err)
	assert.Len(t, added, 1)
	assert.Len(t, lib.Materials(), 3)

	// same day: gated, source not consulted
	added, err = lib.RefreshDaily(context.Background(), src, "ESA", now.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, 1, calls)

	// next day: refreshes again
	_, err = lib.RefreshDaily(context.Background(), src, "ESA", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLibrary_refreshDaily_emptyStillStamps(t *testing.T) {
	kv := newMemKV()
	lib := material.NewLibrary(kv, testutil.NewLogger(t))
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	var calls int
	src := func(context.Context, string) []material.Material { calls++; return nil }

	_, err := lib.RefreshDaily(context.Background(), src, "ESA", now)
	require.NoError(t, err)
	_, err = lib.RefreshDaily(context.Background(), src, "ESA", now)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "an empty result still consumes the day")
}
