package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/institutohope/platform/apps/api/echo"
	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/material"
	"github.com/institutohope/platform/core/student"
	aisvc "github.com/institutohope/platform/services/ai"
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

func newTestConf() *core.Config {
	conf := &core.Config{
		TestMode:   true,
		AppName:    "Instituto Hope",
		SecretKey:  "test-secret-key",
		AdminEmail: "admin@hope.com",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	return conf
}

// setup boots a local-mode server over an in-memory store, offline AI.
func setup(t *testing.T, seed ...student.Student) (*echoapi.Server, *student.Controller, *core.Config) {
	t.Helper()
	conf := newTestConf()
	logger := testutil.NewLogger(t)
	kv := newMemKV()

	if len(seed) > 0 {
		b, err := json.Marshal(seed)
		require.NoError(t, err)
		require.NoError(t, kv.Set(student.KeyRoster, string(b)))
	}

	var seq int
	ctrl := student.NewController(
		student.ModeLocal, kv, nil, nil, conf, logger,
		func() string { seq++; return fmt.Sprintf("student-%d", seq) },
	)
	t.Cleanup(ctrl.Close)

	aiSvc, err := aisvc.NewService(context.Background(), conf, logger)
	require.NoError(t, err)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Ctrl:       ctrl,
		Library:    material.NewLibrary(kv, logger),
		AISvc:      aiSvc,
		Validate:   validate,
		Translator: translator,
	})
	return server, ctrl, conf
}

func doJSON(server *echoapi.Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, server *echoapi.Server, email string) (string, student.Student) {
	t.Helper()
	rec := doJSON(server, http.MethodPost, "/v1/students/login", "",
		map[string]string{"email": email, "password": "whatever"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token, resp.Student
}

func Test_studentApi_login(t *testing.T) {
	seed := testutil.SeedStudent("student-1", "Aluno A", "a@hope.com", student.RoleStudent)
	server, _, _ := setup(t, seed)

	token, rec := login(t, server, "a@hope.com")
	assert.NotEmpty(t, token)
	assert.Equal(t, "student-1", rec.ID)

	// unknown account
	res := doJSON(server, http.MethodPost, "/v1/students/login", "",
		map[string]string{"email": "ghost@hope.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	// malformed payload
	res = doJSON(server, http.MethodPost, "/v1/students/login", "",
		map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func Test_studentApi_register(t *testing.T) {
	server, ctrl, _ := setup(t)

	res := doJSON(server, http.MethodPost, "/v1/students/register", "", map[string]interface{}{
		"name": "Recruta Novo", "email": "novo@hope.com", "password": "secret1", "city": "Madureira",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var resp echoapi.AuthResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	assert.Equal(t, student.RoleStudent, resp.Student.Role)
	assert.NotEmpty(t, resp.Token)
	assert.Len(t, ctrl.Roster(), 1)

	// duplicate email
	res = doJSON(server, http.MethodPost, "/v1/students/register", "", map[string]interface{}{
		"name": "Clone", "email": "novo@hope.com", "password": "secret1", "city": "Madureira",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func Test_studentApi_registerMentorGate(t *testing.T) {
	server, ctrl, _ := setup(t)

	res := doJSON(server, http.MethodPost, "/v1/students/register", "", map[string]interface{}{
		"name": "Impostor", "email": "fake@hope.com", "password": "secret1",
		"city": "Niterói", "role": student.RoleMentor,
	})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, ctrl.Roster())

	// the designated command email may
	res = doJSON(server, http.MethodPost, "/v1/students/register", "", map[string]interface{}{
		"name": "Comando Hope", "email": "admin@hope.com", "password": "secret1",
		"city": "Rio de Janeiro", "role": student.RoleMentor,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var resp echoapi.AuthResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	assert.Equal(t, student.PatentGeneral, resp.Student.Patent)
}

func Test_studentApi_me(t *testing.T) {
	seed := testutil.SeedStudent("student-1", "Aluno A", "a@hope.com", student.RoleStudent)
	server, _, _ := setup(t, seed)

	// auth required
	res := doJSON(server, http.MethodGet, "/v1/students/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	token, _ := login(t, server, "a@hope.com")
	res = doJSON(server, http.MethodGet, "/v1/students/me", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var rec student.Student
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rec))
	assert.Equal(t, "student-1", rec.ID)

	// update
	res = doJSON(server, http.MethodPut, "/v1/students/me", token, map[string]interface{}{
		"city": "Niterói", "weakSubjects": []string{"Português"},
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rec))
	assert.Equal(t, "Niterói", rec.City)
	assert.Equal(t, []string{"Português"}, rec.WeakSubjects)
	assert.Equal(t, "Aluno A", rec.Name, "unsent fields untouched")
}

func Test_studentApi_recordStudy(t *testing.T) {
	seed := testutil.SeedStudent("student-1", "Aluno A", "a@hope.com", student.RoleStudent)
	server, ctrl, _ := setup(t, seed)
	token, _ := login(t, server, "a@hope.com")

	res := doJSON(server, http.MethodPost, "/v1/students/me/study", token,
		map[string]interface{}{"subject": "Matemática", "minutes": 50})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var resp echoapi.StudyResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	assert.Equal(t, 50, resp.Student.TotalMinutes)
	assert.Equal(t, 50, resp.Student.Points)
	assert.NotEmpty(t, resp.Advice)

	sess, _ := ctrl.Session()
	assert.Equal(t, 50, sess.TotalMinutes)

	// zero minutes rejected
	res = doJSON(server, http.MethodPost, "/v1/students/me/study", token,
		map[string]interface{}{"subject": "Matemática", "minutes": 0})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func Test_studentApi_rosterMentorOnly(t *testing.T) {
	seed := []student.Student{
		testutil.SeedStudent("student-1", "Aluno A", "a@hope.com", student.RoleStudent),
		testutil.SeedStudent("mentor-1", "Comando", "admin@hope.com", student.RoleMentor),
	}
	server, _, _ := setup(t, seed...)

	token, _ := login(t, server, "a@hope.com")
	res := doJSON(server, http.MethodGet, "/v1/students", token, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	token, _ = login(t, server, "admin@hope.com")
	res = doJSON(server, http.MethodGet, "/v1/students", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var roster []student.Student
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &roster))
	assert.Len(t, roster, 2)

	// export ships a workbook
	res = doJSON(server, http.MethodGet, "/v1/students/export", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, res.Body.Len())
}

func Test_studentApi_approve(t *testing.T) {
	teacher := testutil.SeedStudent("teacher-1", "Instrutor", "t@hope.com", student.RoleTeacher)
	teacher.Status = student.StatusPending
	seed := []student.Student{
		teacher,
		testutil.SeedStudent("mentor-1", "Comando", "admin@hope.com", student.RoleMentor),
	}
	server, _, _ := setup(t, seed...)
	token, _ := login(t, server, "admin@hope.com")

	res := doJSON(server, http.MethodPost, "/v1/students/teacher-1/approve", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var rec student.Student
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rec))
	assert.Equal(t, student.StatusActive, rec.Status)

	res = doJSON(server, http.MethodPost, "/v1/students/ghost/approve", token, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func Test_settingsApi_logo(t *testing.T) {
	seed := testutil.SeedStudent("mentor-1", "Comando", "admin@hope.com", student.RoleMentor)
	server, _, _ := setup(t, seed)

	// nothing stored yet
	res := doJSON(server, http.MethodGet, "/v1/settings/logo", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	token, _ := login(t, server, "admin@hope.com")
	res = doJSON(server, http.MethodPut, "/v1/settings/logo", token,
		map[string]string{"logo": "data:image/png;base64,AAA"})
	require.Equal(t, http.StatusOK, res.Code)

	// public read
	res = doJSON(server, http.MethodGet, "/v1/settings/logo", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var resp echoapi.LogoResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	assert.Equal(t, "data:image/png;base64,AAA", resp.Logo)

	res = doJSON(server, http.MethodDelete, "/v1/settings/logo", token, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = doJSON(server, http.MethodGet, "/v1/settings/logo", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func Test_aiApi_offline(t *testing.T) {
	seed := testutil.SeedStudent("student-1", "Aluno A", "a@hope.com", student.RoleStudent)
	server, _, _ := setup(t, seed)
	token, _ := login(t, server, "a@hope.com")

	// library serves the seed catalog
	res := doJSON(server, http.MethodGet, "/v1/materials", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var mats []material.Material
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &mats))
	assert.Len(t, mats, 2)

	// offline AI yields no flashcards, but a valid response
	res = doJSON(server, http.MethodPost, "/v1/ai/flashcards", token,
		map[string]string{"topic": "Juros Compostos"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, "[]", res.Body.String())

	// study plan falls back to the offline plan and persists it
	res = doJSON(server, http.MethodPost, "/v1/ai/study-plan", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var rec student.Student
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rec))
	assert.NotEmpty(t, rec.AIStudyPlan)
	assert.NotEmpty(t, rec.RecommendedMaterialIDs)
	assert.NotEmpty(t, rec.LastPlanUpdate)

	// short essays rejected before hitting the engine
	res = doJSON(server, http.MethodPost, "/v1/ai/essay", token,
		map[string]string{"text": "curto"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func Test_jwtMiddleware_rejectsGarbage(t *testing.T) {
	server, _, _ := setup(t)

	res := doJSON(server, http.MethodGet, "/v1/students/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
