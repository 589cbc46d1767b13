package aisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/material"
	"github.com/institutohope/platform/core/student"
)

type (
	Flashcard struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	}

	EssayFeedback struct {
		Score         int      `json:"score"` // 0..1000
		Comments      []string `json:"comments"`
		CorrectedText string   `json:"correctedText"`
	}
)

// Service is the generative-AI engine behind study plans, flashcards, essay
// correction and daily content. Every method is offline-safe: without a
// configured client (or on any transport error) it returns a usable default
// instead of an error the caller would have to surface.
type Service struct {
	client *genai.Client // nil when the API key is absent
	model  string
	logger core.Logger
}

func NewService(ctx context.Context, conf *core.Config, logger core.Logger) (*Service, error) {
	svc := &Service{model: conf.GeminiModel, logger: logger}
	if !conf.AIConfigured() {
		return svc, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: conf.GeminiApiKey})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating genai client")
	}
	svc.client = client
	return svc, nil
}

func (s *Service) Configured() bool { return s.client != nil }

// TacticalAdvice is the short post-study feedback line.
func (s *Service) TacticalAdvice(ctx context.Context, studentName, subject string, minutes int) string {
	if s.client == nil {
		return "Bom trabalho! Continue firme. (IA Offline)"
	}
	prompt := fmt.Sprintf(
		"Você é um instrutor militar rígido mas motivador do Instituto Hope. O aluno %s estudou %s por %d minutos. Dê um feedback curto e direto (máximo 1 frase) estilo militar.",
		studentName, subject, minutes)
	text, err := s.generate(ctx, prompt, false)
	if err != nil {
		s.logger.Error(fmt.Sprintf("generating tactical advice: %v", err), err)
		return "Mantenha a disciplina. (Erro de conexão)"
	}
	if text == "" {
		return "Mantenha a disciplina."
	}
	return text
}

// StudyPlan builds the weekly plan for rec as an opaque JSON blob, stored
// verbatim on the student record.
func (s *Service) StudyPlan(ctx context.Context, rec student.Student) string {
	if s.client == nil {
		return `{"motto":"Disciplina é Liberdade (IA Offline)","weeklyGoal":"Cumprir o horário","days":[]}`
	}

	priority := strings.Join(rec.WeakSubjects, ", ")
	if priority == "" {
		priority = "Matemática Básica"
	}
	prompt := fmt.Sprintf(`
Crie um plano semanal JSON para um aluno militar.
Acorda: %s, Dorme: %s.
Foco: %d min/sessão.
Prioridade: %s.

Responda APENAS com um JSON válido seguindo este esquema exato:
{
	"motto": "uma frase curta militar motivacional",
	"weeklyGoal": "uma meta clara para a semana",
	"days": [
		{
			"day": "Segunda",
			"focus": "Foco do dia (ex: Matéria X)",
			"activities": [
				{ "time": "08:00", "type": "study", "title": "Matéria", "description": "Tópico específico", "durationMinutes": 60 }
			]
		}
	]
}
Gere atividades para a semana toda (Segunda a Domingo).`,
		rec.Routine.WakeUpTime, rec.Routine.SleepTime, rec.Routine.FocusTimeMinutes, priority)

	text, err := s.generate(ctx, prompt, true)
	if err != nil {
		s.logger.Error(fmt.Sprintf("generating study plan: %v", err), err)
		return `{"motto":"Erro na IA","weeklyGoal":"Tente novamente","days":[]}`
	}
	return text
}

// StudyMaterial writes a full markdown lesson for a library entry.
func (s *Service) StudyMaterial(ctx context.Context, title, subject, exam string) string {
	if s.client == nil {
		return fmt.Sprintf("# %s\nErro: Chave API não configurada.", title)
	}
	prompt := fmt.Sprintf(`Escreva uma aula completa sobre "%s" (%s) para a prova %s.
Use formatação Markdown rica: Títulos (##), Negrito (**), Listas.
Inclua:
1. Teoria Resumida e Direta
2. O que a banca cobra (Bizus)
3. Exemplo prático resolvido.`, title, subject, exam)

	text, err := s.generate(ctx, prompt, false)
	if err != nil {
		s.logger.Error(fmt.Sprintf("generating study material: %v", err), err)
		return "Erro de conexão com o QG de Inteligência."
	}
	if text == "" {
		return "Erro ao gerar conteúdo."
	}
	return text
}

// Flashcards produces 5 study cards on topic.
func (s *Service) Flashcards(ctx context.Context, topic string) []Flashcard {
	if s.client == nil {
		return nil
	}
	prompt := fmt.Sprintf(`Crie 5 flashcards de estudo sobre "%s".
Retorne apenas JSON no formato: { "cards": [{ "front": "pergunta", "back": "resposta curta" }] }`, topic)

	text, err := s.generate(ctx, prompt, true)
	if err != nil {
		s.logger.Error(fmt.Sprintf("generating flashcards: %v", err), err)
		return nil
	}
	var out struct {
		Cards []Flashcard `json:"cards"`
	}
	if err = json.Unmarshal([]byte(text), &out); err != nil {
		s.logger.Error(fmt.Sprintf("decoding flashcards: %v", err), err)
		return nil
	}
	return out.Cards
}

// CorrectEssay grades an essay for exam on a 0..1000 scale.
func (s *Service) CorrectEssay(ctx context.Context, text, exam string) EssayFeedback {
	if s.client == nil {
		return EssayFeedback{Comments: []string{"IA Offline - Configure a chave API"}, CorrectedText: text}
	}
	prompt := fmt.Sprintf(`Corrija esta redação para o concurso %s. Seja rigoroso.
Texto: "%s".

Retorne JSON:
{
	"score": (nota de 0 a 1000),
	"comments": ["comentario crítico 1", "comentario crítico 2", "ponto positivo"],
	"correctedText": "versão melhorada do texto se necessário"
}`, exam, text)

	raw, err := s.generate(ctx, prompt, true)
	if err != nil {
		s.logger.Error(fmt.Sprintf("correcting essay: %v", err), err)
		return EssayFeedback{Comments: []string{"Erro ao processar correção."}, CorrectedText: text}
	}
	var fb EssayFeedback
	if err = json.Unmarshal([]byte(raw), &fb); err != nil {
		s.logger.Error(fmt.Sprintf("decoding essay feedback: %v", err), err)
		return EssayFeedback{Comments: []string{"Erro ao processar correção."}, CorrectedText: text}
	}
	return fb
}

// DailyTopics generates the daily library additions. Satisfies
// material.TopicSource.
func (s *Service) DailyTopics(ctx context.Context, targetExam string) []material.Material {
	if s.client == nil {
		return nil
	}
	prompt := fmt.Sprintf(`Gere 3 tópicos de estudo essenciais para passar na %s hoje.
Retorne JSON: { "items": [{ "title": "Titulo do Tópico", "subject": "Materia", "difficulty": "Básico" }] }`, targetExam)

	raw, err := s.generate(ctx, prompt, true)
	if err != nil {
		s.logger.Error(fmt.Sprintf("generating daily topics: %v", err), err)
		return nil
	}
	var out struct {
		Items []struct {
			Title      string `json:"title"`
			Subject    string `json:"subject"`
			Difficulty string `json:"difficulty"`
		} `json:"items"`
	}
	if err = json.Unmarshal([]byte(raw), &out); err != nil {
		s.logger.Error(fmt.Sprintf("decoding daily topics: %v", err), err)
		return nil
	}

	topics := make([]material.Material, 0, len(out.Items))
	for _, item := range out.Items {
		topics = append(topics, material.Material{
			ID:         fmt.Sprintf("auto-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
			Title:      item.Title,
			Subject:    item.Subject,
			Difficulty: item.Difficulty,
			Type:       material.TypePDF,
			URL:        "#",
			Program:    "Pré-Militar",
		})
	}
	return topics
}

func (s *Service) generate(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	var config *genai.GenerateContentConfig
	if wantJSON {
		config = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}
	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return "", pkgerrors.Wrap(err, "calling gemini")
	}
	return strings.TrimSpace(result.Text()), nil
}
