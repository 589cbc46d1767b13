package student

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/institutohope/platform/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleTeacher = "teacher"
)

// Statuses
const (
	StatusActive  = "active"
	StatusPending = "pending" // teachers await mentor approval
)

// Patents (rank ladder, lowest first)
const (
	PatentRecruta    = "Recruta"
	PatentSoldado    = "Soldado"
	PatentCabo       = "Cabo"
	PatentSargento   = "Sargento"
	PatentSubtenente = "Subtenente"
	PatentAspirante  = "Aspirante"
	PatentTenente    = "Tenente"
	PatentCapitao    = "Capitão"
	PatentGeneral    = "General" // mentors only
)

var (
	AllRoles = []string{RoleStudent, RoleMentor, RoleTeacher}

	Patents = []string{
		PatentRecruta, PatentSoldado, PatentCabo, PatentSargento,
		PatentSubtenente, PatentAspirante, PatentTenente, PatentCapitao,
		PatentGeneral,
	}
)

type Commitment struct {
	ID        string `json:"id"`
	Day       string `json:"day"` // "Segunda".."Domingo" or "Todos"
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Title     string `json:"title"`
}

type Routine struct {
	WakeUpTime       string       `json:"wakeUpTime"`
	SleepTime        string       `json:"sleepTime"`
	FocusTimeMinutes int          `json:"focusTimeMinutes"`
	Commitments      []Commitment `json:"commitments"`
}

// DefaultRoutine is the routine assigned to freshly provisioned profiles.
func DefaultRoutine() Routine {
	return Routine{
		WakeUpTime:       "05:30",
		SleepTime:        "22:00",
		FocusTimeMinutes: 50,
		Commitments: []Commitment{
			{ID: "c1", Day: "Segunda", StartTime: "07:00", EndTime: "12:00", Title: "Ensino Médio"},
			{ID: "c2", Day: "Quarta", StartTime: "19:00", EndTime: "21:00", Title: "Treino Físico (TAF)"},
		},
	}
}

// Student is the role-polymorphic user record. JSON tags follow the
// document field names so the local and remote representations of the same
// person stay interchangeable; ID is the sole join key between them.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Polo     string `json:"polo"`
	City     string `json:"city"`
	Program  string `json:"program"`
	Patent   string `json:"patent"`

	AvatarURL  string `json:"avatarUrl"`
	TargetExam string `json:"targetExam"` // e.g. "ESA", "EsPCEx"

	TotalMinutes      int `json:"totalMinutes"`
	StreakDays        int `json:"streakDays"`
	MissionsCompleted int `json:"missionsCompleted"`
	Points            int `json:"points"`

	AIStudyPlan            string   `json:"aiStudyPlan,omitempty"` // opaque serialized plan
	RecommendedMaterialIDs []string `json:"recommendedMaterialIds,omitempty"`
	AvailableHoursPerDay   int      `json:"availableHoursPerDay"`
	WeakSubjects           []string `json:"weakSubjects"`
	LastPlanUpdate         string   `json:"lastPlanUpdate,omitempty"` // ISO date

	Routine Routine `json:"routine"`
}

func (s *Student) IsStudent() bool { return s.Role == RoleStudent }
func (s *Student) IsMentor() bool  { return s.Role == RoleMentor }
func (s *Student) IsTeacher() bool { return s.Role == RoleTeacher }
func (s *Student) IsActive() bool  { return s.Status == StatusActive }

// RecordStudy logs a completed study session of `minutes`.
func (s *Student) RecordStudy(minutes int) {
	s.TotalMinutes += minutes
	s.Points += minutes
}

// CompleteMission credits a finished mission worth `points`.
func (s *Student) CompleteMission(points int) {
	s.MissionsCompleted++
	s.Points += points
}

// SetPlan stores a freshly generated study plan blob and stamps the update.
func (s *Student) SetPlan(planJSON string, now time.Time) {
	s.AIStudyPlan = planJSON
	s.LastPlanUpdate = now.UTC().Format(time.RFC3339)
}

// AvatarFor builds the default avatar reference for a display name.
func AvatarFor(name string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=059669&color=fff", url.QueryEscape(name))
}

// NewStudent contains information needed to register a new Student.
type NewStudent struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	City       string `json:"city" validate:"required"`
	TargetExam string `json:"targetExam"`
	Program    string `json:"program"`
	Role       string `json:"role" validate:"omitempty,oneof=student mentor teacher"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.City = core.CleanString(ns.City)
	if ns.Role == "" {
		ns.Role = RoleStudent
	}
	if ns.TargetExam == "" {
		ns.TargetExam = "ESA"
	}
	if ns.Program == "" {
		ns.Program = "Pré-Militar"
	}
	return validate.Struct(ns)
}

// provision builds the Student record for a validated registration.
// Teachers start pending until a mentor approves them.
func (ns *NewStudent) provision(id string) Student {
	status := StatusActive
	if ns.Role == RoleTeacher {
		status = StatusPending
	}
	patent := PatentRecruta
	if ns.Role == RoleMentor {
		patent = PatentGeneral
	}
	return Student{
		ID:                   id,
		Name:                 ns.Name,
		Email:                ns.Email,
		Role:                 ns.Role,
		Status:               status,
		Polo:                 "Online",
		City:                 ns.City,
		Program:              ns.Program,
		Patent:               patent,
		AvatarURL:            AvatarFor(ns.Name),
		TargetExam:           ns.TargetExam,
		AvailableHoursPerDay: 4,
		WeakSubjects:         []string{},
		Routine:              DefaultRoutine(),
	}
}

// placeholder synthesizes a minimal profile for a remote identity whose
// authoritative document has not arrived yet. Favors availability: the
// record may diverge until a fetch or subscription reconciles it.
func placeholder(h Handle) Student {
	name, _, ok := strings.Cut(h.Email, "@")
	if !ok || name == "" {
		name = "Usuário"
	}
	return Student{
		ID:                   h.ID,
		Name:                 name,
		Email:                h.Email,
		Role:                 RoleStudent,
		Status:               StatusActive,
		Polo:                 "Online",
		City:                 "Brasil",
		Program:              "Pré-Militar",
		Patent:               PatentRecruta,
		TargetExam:           "ESA",
		AvailableHoursPerDay: 4,
		WeakSubjects:         []string{},
		Routine:              DefaultRoutine(),
	}
}
