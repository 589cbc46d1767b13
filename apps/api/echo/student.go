package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/student"
	aisvc "github.com/institutohope/platform/services/ai"
	"github.com/institutohope/platform/services/export"
	"github.com/institutohope/platform/services/metrics"
)

type studentApi struct {
	ctrl     *student.Controller
	ai       *aisvc.Service
	conf     *core.Config
	validate *validator.Validate
}

func registerStudentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	ctrl *student.Controller,
	ai *aisvc.Service,
	conf *core.Config,
	validate *validator.Validate,
) {
	api := studentApi{
		ctrl:     ctrl,
		ai:       ai,
		conf:     conf,
		validate: validate,
	}

	sg := g.Group("/students")

	// un-authed endpoints
	sg.POST("/login", api.login)
	sg.POST("/register", api.register)

	// authed endpoints
	ag := sg.Group("", jwt)
	ag.POST("/logout", api.logout)
	ag.GET("/me", api.retrieveSession)
	ag.PUT("/me", api.updateSession)
	ag.POST("/me/study", api.recordStudy)
	ag.POST("/me/missions", api.completeMission)

	// command endpoints
	mg := ag.Group("", mentorMiddleware())
	mg.GET("", api.queryRoster)
	mg.GET("/export", api.exportRoster)
	mg.POST("/:id/approve", api.approve)
}

func registerSettingsAPI(g *echo.Group, jwt echo.MiddlewareFunc, ctrl *student.Controller) {
	api := settingsApi{ctrl: ctrl}
	sg := g.Group("/settings")
	sg.GET("/logo", api.retrieveLogo)

	mg := sg.Group("", jwt, mentorMiddleware())
	mg.PUT("/logo", api.updateLogo)
	mg.DELETE("/logo", api.removeLogo)
}

// Handlers

func (api *studentApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.ctrl.Login(ctx.Request().Context(), data.Email, data.Password)
	metrics.Logins.WithLabelValues(loginOutcome(err)).Inc()
	if err != nil {
		if errors.Is(err, student.ErrNotFound) || errors.Is(err, student.ErrInvalidCredentials) {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(api.conf, GetStudentClaims(api.conf, rec))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, AuthResponse{Token: token, Student: rec})
}

func (api *studentApi) register(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.ctrl.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	metrics.Registrations.Inc()

	token, err := GenerateToken(api.conf, GetStudentClaims(api.conf, rec))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, AuthResponse{Token: token, Student: rec})
}

func (api *studentApi) logout(ctx echo.Context) error {
	if err := api.ctrl.Logout(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) retrieveSession(ctx echo.Context) error {
	rec, err := api.sessionFor(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *studentApi) updateSession(ctx echo.Context) error {
	rec, err := api.sessionFor(ctx)
	if err != nil {
		return err
	}

	var data UpdateStudentRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudentRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	data.apply(&rec)

	if err = api.ctrl.UpdateStudent(ctx.Request().Context(), rec); err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *studentApi) recordStudy(ctx echo.Context) error {
	rec, err := api.sessionFor(ctx)
	if err != nil {
		return err
	}

	var data StudySessionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudySessionRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec.RecordStudy(data.Minutes)
	if err = api.ctrl.UpdateStudent(ctx.Request().Context(), rec); err != nil {
		return errors.Wrap(err, "updating student")
	}

	metrics.AIRequests.WithLabelValues("tactical_advice").Inc()
	advice := api.ai.TacticalAdvice(ctx.Request().Context(), rec.Name, data.Subject, data.Minutes)
	return ctx.JSON(http.StatusOK, StudyResponse{Student: rec, Advice: advice})
}

func (api *studentApi) completeMission(ctx echo.Context) error {
	rec, err := api.sessionFor(ctx)
	if err != nil {
		return err
	}

	var data MissionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MissionRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec.CompleteMission(data.Points)
	if err = api.ctrl.UpdateStudent(ctx.Request().Context(), rec); err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *studentApi) queryRoster(ctx echo.Context) error {
	roster := api.ctrl.Roster()
	if roster == nil {
		roster = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *studentApi) exportRoster(ctx echo.Context) error {
	buf, err := export.RosterWorkbook(api.ctrl.Roster())
	if err != nil {
		return errors.Wrap(err, "building roster workbook")
	}
	filename := "tropa_" + time.Now().Format("2006-01-02") + ".xlsx"
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (api *studentApi) approve(ctx echo.Context) error {
	rec, err := api.ctrl.Approve(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving student")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// sessionFor returns the identity session, enforcing that the token bearer
// owns it. One session lives per process; a stale token for another account
// gets 401.
func (api *studentApi) sessionFor(ctx echo.Context) (student.Student, error) {
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

// Settings

type settingsApi struct {
	ctrl *student.Controller
}

func (api *settingsApi) retrieveLogo(ctx echo.Context) error {
	logo, ok := api.ctrl.Logo()
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, LogoResponse{Logo: logo})
}

func (api *settingsApi) updateLogo(ctx echo.Context) error {
	var data LogoRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LogoRequest")
	}
	if data.Logo == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "logo", Error: "this field is required"})
	}
	if err := api.ctrl.SetLogo(data.Logo); err != nil {
		return errors.Wrap(err, "saving logo")
	}
	return ctx.JSON(http.StatusOK, LogoResponse{Logo: data.Logo})
}

func (api *settingsApi) removeLogo(ctx echo.Context) error {
	if err := api.ctrl.RemoveLogo(); err != nil {
		return errors.Wrap(err, "removing logo")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Bindings

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	AuthResponse struct {
		Token   string          `json:"token"`
		Student student.Student `json:"student"`
	}

	UpdateStudentRequest struct {
		Name                 *string          `json:"name"`
		City                 *string          `json:"city"`
		TargetExam           *string          `json:"targetExam"`
		Program              *string          `json:"program"`
		AvatarURL            *string          `json:"avatarUrl"`
		AvailableHoursPerDay *int             `json:"availableHoursPerDay" validate:"omitempty,min=1,max=24"`
		WeakSubjects         *[]string        `json:"weakSubjects"`
		Routine              *student.Routine `json:"routine"`
	}

	StudySessionRequest struct {
		Subject string `json:"subject" validate:"required"`
		Minutes int    `json:"minutes" validate:"required,min=1"`
	}

	StudyResponse struct {
		Student student.Student `json:"student"`
		Advice  string          `json:"advice"`
	}

	MissionRequest struct {
		Points int `json:"points" validate:"required,min=1"`
	}

	LogoRequest struct {
		Logo string `json:"logo"` // data URI
	}

	LogoResponse struct {
		Logo string `json:"logo"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (ur *UpdateStudentRequest) Validate(validate *validator.Validate) error {
	if ur.Name != nil {
		*ur.Name = core.CleanString(*ur.Name)
	}
	if ur.City != nil {
		*ur.City = core.CleanString(*ur.City)
	}
	return validate.Struct(ur)
}

func (ur *UpdateStudentRequest) apply(rec *student.Student) {
	if ur.Name != nil {
		rec.Name = *ur.Name
	}
	if ur.City != nil {
		rec.City = *ur.City
	}
	if ur.TargetExam != nil {
		rec.TargetExam = *ur.TargetExam
	}
	if ur.Program != nil {
		rec.Program = *ur.Program
	}
	if ur.AvatarURL != nil {
		rec.AvatarURL = *ur.AvatarURL
	}
	if ur.AvailableHoursPerDay != nil {
		rec.AvailableHoursPerDay = *ur.AvailableHoursPerDay
	}
	if ur.WeakSubjects != nil {
		rec.WeakSubjects = *ur.WeakSubjects
	}
	if ur.Routine != nil {
		rec.Routine = *ur.Routine
	}
}

func (sr *StudySessionRequest) Validate(validate *validator.Validate) error {
	sr.Subject = core.CleanString(sr.Subject)
	return validate.Struct(sr)
}

func (mr *MissionRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(mr)
}
