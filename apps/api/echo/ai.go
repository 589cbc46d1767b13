package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/material"
	"github.com/institutohope/platform/core/student"
	aisvc "github.com/institutohope/platform/services/ai"
	"github.com/institutohope/platform/services/metrics"
)

type aiApi struct {
	svc      *aisvc.Service
	ctrl     *student.Controller
	lib      *material.Library
	validate *validator.Validate
}

func registerAIAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *aisvc.Service,
	ctrl *student.Controller,
	lib *material.Library,
	validate *validator.Validate,
) {
	api := aiApi{svc: svc, ctrl: ctrl, lib: lib, validate: validate}

	mg := g.Group("/materials", jwt)
	mg.GET("", api.queryMaterials)
	mg.POST("/daily-refresh", api.dailyRefresh)
	mg.POST("/lesson", api.generateLesson)

	ag := g.Group("/ai", jwt)
	ag.POST("/study-plan", api.generatePlan)
	ag.POST("/flashcards", api.generateFlashcards)
	ag.POST("/essay", api.correctEssay)
}

// Handlers

func (api *aiApi) queryMaterials(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.lib.Materials())
}

// dailyRefresh tops the library up with today's topics. No-op after the
// first call of the day.
func (api *aiApi) dailyRefresh(ctx echo.Context) error {
	rec, err := api.session(ctx)
	if err != nil {
		return err
	}

	metrics.AIRequests.WithLabelValues("daily_topics").Inc()
	added, err := api.lib.RefreshDaily(ctx.Request().Context(), api.svc.DailyTopics, rec.TargetExam, time.Now())
	if err != nil {
		return errors.Wrap(err, "refreshing daily materials")
	}
	if added == nil {
		added = []material.Material{}
	}
	return ctx.JSON(http.StatusOK, added)
}

func (api *aiApi) generateLesson(ctx echo.Context) error {
	rec, err := api.session(ctx)
	if err != nil {
		return err
	}

	var data LessonRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LessonRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	metrics.AIRequests.WithLabelValues("lesson").Inc()
	content := api.svc.StudyMaterial(ctx.Request().Context(), data.Title, data.Subject, rec.TargetExam)
	return ctx.JSON(http.StatusOK, LessonResponse{Title: data.Title, Content: content})
}

// generatePlan builds a fresh weekly plan, stores it on the student record
// and refreshes the recommended library picks.
func (api *aiApi) generatePlan(ctx echo.Context) error {
	rec, err := api.session(ctx)
	if err != nil {
		return err
	}

	metrics.AIRequests.WithLabelValues("study_plan").Inc()
	plan := api.svc.StudyPlan(ctx.Request().Context(), rec)
	rec.SetPlan(plan, time.Now())
	rec.RecommendedMaterialIDs = api.lib.Recommended(rec.WeakSubjects)

	if err = api.ctrl.UpdateStudent(ctx.Request().Context(), rec); err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *aiApi) generateFlashcards(ctx echo.Context) error {
	var data FlashcardsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FlashcardsRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	metrics.AIRequests.WithLabelValues("flashcards").Inc()
	cards := api.svc.Flashcards(ctx.Request().Context(), data.Topic)
	if cards == nil {
		cards = []aisvc.Flashcard{}
	}
	return ctx.JSON(http.StatusOK, cards)
}

func (api *aiApi) correctEssay(ctx echo.Context) error {
	rec, err := api.session(ctx)
	if err != nil {
		return err
	}

	var data EssayRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EssayRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	metrics.AIRequests.WithLabelValues("essay").Inc()
	fb := api.svc.CorrectEssay(ctx.Request().Context(), data.Text, rec.TargetExam)
	return ctx.JSON(http.StatusOK, fb)
}

func (api *aiApi) session(ctx echo.Context) (student.Student, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "getting context claims")
	}
	rec, ok := api.ctrl.Session()
	if !ok || rec.ID != claims.Subject {
		return student.Student{}, errUnauthorized
	}
	return rec, nil
}

// Bindings

type (
	LessonRequest struct {
		Title   string `json:"title" validate:"required"`
		Subject string `json:"subject" validate:"required"`
	}

	LessonResponse struct {
		Title   string `json:"title"`
		Content string `json:"content"` // markdown
	}

	FlashcardsRequest struct {
		Topic string `json:"topic" validate:"required"`
	}

	EssayRequest struct {
		Text string `json:"text" validate:"required,min=50"`
	}
)

func (lr *LessonRequest) Validate(validate *validator.Validate) error {
	lr.Title = core.CleanString(lr.Title)
	lr.Subject = core.CleanString(lr.Subject)
	return validate.Struct(lr)
}

func (fr *FlashcardsRequest) Validate(validate *validator.Validate) error {
	fr.Topic = core.CleanString(fr.Topic)
	return validate.Struct(fr)
}

func (er *EssayRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(er)
}
