package testutil

import (
	"testing"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/student"
)

// Logger reports through the test log so failures carry service output.
type Logger struct {
	t *testing.T
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(t *testing.T) *Logger { return &Logger{t: t} }

func (l *Logger) Debug(msg string, args ...interface{}) { l.t.Logf("DEBUG: %s %v", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.t.Logf("INFO: %s %v", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.t.Logf("WARN: %s %v", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.t.Logf("ERROR: %s %v", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.t.Fatalf("FATAL: %s %v", msg, args) }

// SeedStudent builds an active student record for fixtures.
func SeedStudent(id, name, email, role string) student.Student {
	return student.Student{
		ID:                   id,
		Name:                 name,
		Email:                email,
		Role:                 role,
		Status:               student.StatusActive,
		Polo:                 "RJ - Madureira",
		City:                 "Rio de Janeiro",
		Program:              "Pré-Militar",
		Patent:               student.PatentRecruta,
		AvatarURL:            student.AvatarFor(name),
		TargetExam:           "ESA",
		AvailableHoursPerDay: 4,
		WeakSubjects:         []string{},
		Routine:              student.DefaultRoutine(),
	}
}
