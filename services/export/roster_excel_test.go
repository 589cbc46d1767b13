package export_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/institutohope/platform/core/student"
	"github.com/institutohope/platform/services/export"
	testutil "github.com/institutohope/platform/tests"
)

func TestRosterWorkbook(t *testing.T) {
	roster := []student.Student{
		testutil.SeedStudent("student-1", "Aluno A", "a@hope.com", student.RoleStudent),
		testutil.SeedStudent("student-2", "Aluno B", "b@hope.com", student.RoleTeacher),
	}
	roster[0].TotalMinutes = 300
	roster[0].Points = 450

	buf, err := export.RosterWorkbook(roster)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Tropa")
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 records

	assert.Equal(t, "Nome", rows[0][1])
	assert.Equal(t, "Aluno A", rows[1][1])
	assert.Equal(t, "300", rows[1][10])
	assert.Equal(t, student.RoleTeacher, rows[2][3])
}

func TestRosterWorkbook_empty(t *testing.T) {
	buf, err := export.RosterWorkbook(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Tropa")
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}
