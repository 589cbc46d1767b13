package aisvc_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/institutohope/platform/core"
	aisvc "github.com/institutohope/platform/services/ai"
	testutil "github.com/institutohope/platform/tests"
)

// offline service: no API key, no network
func newOffline(t *testing.T) *aisvc.Service {
	t.Helper()
	conf := &core.Config{GeminiModel: "gemini-2.5-flash"}
	svc, err := aisvc.NewService(context.Background(), conf, testutil.NewLogger(t))
	require.NoError(t, err)
	require.False(t, svc.Configured())
	return svc
}

func TestService_offlineFallbacks(t *testing.T) {
	svc := newOffline(t)
	ctx := context.Background()

	advice := svc.TacticalAdvice(ctx, "Silva", "Matemática", 50)
	assert.Contains(t, advice, "IA Offline")

	plan := svc.StudyPlan(ctx, testutil.SeedStudent("student-1", "Silva", "s@hope.com", "student"))
	var decoded struct {
		Motto string          `json:"motto"`
		Days  json.RawMessage `json:"days"`
	}
	require.NoError(t, json.Unmarshal([]byte(plan), &decoded), "fallback plan must be valid JSON")
	assert.NotEmpty(t, decoded.Motto)

	lesson := svc.StudyMaterial(ctx, "Logaritmos", "Matemática", "ESA")
	assert.Contains(t, lesson, "# Logaritmos")

	assert.Empty(t, svc.Flashcards(ctx, "Juros Compostos"))
	assert.Empty(t, svc.DailyTopics(ctx, "ESA"))

	fb := svc.CorrectEssay(ctx, "minha redação", "ESA")
	assert.Zero(t, fb.Score)
	assert.NotEmpty(t, fb.Comments)
	assert.Equal(t, "minha redação", fb.CorrectedText, "original text preserved")
}
