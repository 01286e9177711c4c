package service

import (
	"context"
	"testing"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func TestCreateStudentValidatesContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.students.CreateStudent(ctx, CreateStudentReq{Name: "x", Email: "  ", Password: "secret123"})
	assert.ErrorIs(t, err, util.ErrValidation)

	f.createStudent(t, "nour")
	_, err = f.students.CreateStudent(ctx, CreateStudentReq{Name: "y", Email: "nour@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	byPhone, err := f.students.CreateStudent(ctx, CreateStudentReq{Name: "z", Phone: "0500000001", Password: "secret123"})
	require.NoError(t, err)
	assert.Nil(t, byPhone.Email)
	assert.Equal(t, model.Student, byPhone.Role)
	assert.NotEqual(t, "secret123", byPhone.Password)
	assert.NotNil(t, byPhone.Categories)

	_, err = f.students.CreateStudent(ctx, CreateStudentReq{Name: "w", Phone: "0500000001", Password: "secret123"})
	assert.ErrorIs(t, err, util.ErrPhoneRegistered)

	assert.Equal(t, []string{util.EventStudentAdded, util.EventStudentAdded}, f.notes.names())
}

func TestCreateStudentSeedsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createExam(t, 1, 1, 1)
	second := f.createExam(t, 1, 2, 1)
	hidden := f.createExam(t, 2, 1, 1)
	require.NoError(t, f.exams.Deactivate(ctx, hidden.ID))

	student := f.createStudent(t, "a")
	detail, err := f.students.GetStudent(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, detail.Progress, 2)
	assert.Equal(t, first.ID, detail.Progress[0].ExamID)
	assert.Equal(t, model.StatusUnlocked, detail.Progress[0].Status)
	assert.Equal(t, second.ID, detail.Progress[1].ExamID)
	assert.Equal(t, model.StatusLocked, detail.Progress[1].Status)

	_, err = f.progress.Find(student.ID, hidden.ID)
	assert.ErrorIs(t, err, util.ErrProgressNotFound)
}

func TestLockAndUnlockExams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createExam(t, 1, 1, 1)
	second := f.createExam(t, 1, 2, 1)
	student := f.createStudent(t, "a")

	n, err := f.students.LockExams(ctx, student.ID, []uint{first.ID, second.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, model.StatusLocked, f.entry(t, student.ID, first.ID).Status)

	n, err = f.students.UnlockExams(ctx, student.ID, []uint{first.ID, second.ID, 9999})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, model.StatusUnlocked, f.entry(t, student.ID, second.ID).Status)

	// completed entries are never locked
	_, err = f.submissions.SubmitExam(ctx, student.ID, first.ID, answers(first, 1))
	require.NoError(t, err)
	n, err = f.students.LockExams(ctx, student.ID, []uint{first.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.StatusCompleted, f.entry(t, student.ID, first.ID).Status)

	// an exam the fan-out has not reached yet gets an entry on unlock
	late := f.createExam(t, 3, 1, 1)
	n, err = f.students.UnlockExams(ctx, student.ID, []uint{late.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, model.StatusUnlocked, f.entry(t, student.ID, late.ID).Status)
	assert.Equal(t, 3, f.entry(t, student.ID, late.ID).ExamGroup)
}

func TestLockAndUnlockGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createExam(t, 1, 1, 1)
	a := f.createExam(t, 2, 1, 1)
	b := f.createExam(t, 2, 2, 1)
	student := f.createStudent(t, "a")

	n, err := f.students.UnlockGroup(ctx, student.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = f.submissions.StartExam(ctx, student.ID, a.ID)
	require.NoError(t, err)

	n, err = f.students.LockGroup(ctx, student.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, model.StatusLocked, f.entry(t, student.ID, a.ID).Status)
	assert.Equal(t, model.StatusLocked, f.entry(t, student.ID, b.ID).Status)

	n, err = f.students.UnlockGroup(ctx, student.ID, 7)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.students.LockGroup(ctx, student.ID, 9)
	assert.ErrorIs(t, err, util.ErrInvalidExamGroup)
	_, err = f.students.UnlockGroup(ctx, student.ID, -1)
	assert.ErrorIs(t, err, util.ErrInvalidExamGroup)
	_, err = f.students.LockGroup(ctx, 4242, 1)
	assert.ErrorIs(t, err, util.ErrStudentNotFound)
}

func TestAssignCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createStudent(t, "a")
	b := f.createStudent(t, "b")
	email := "teacher@example.com"
	teacher := &model.User{Name: "t", Email: &email, Password: "x", Role: model.Teacher}
	require.NoError(t, f.users.Create(teacher))

	n, err := f.students.AssignCategories(ctx, []uint{a.ID, b.ID, teacher.ID}, []string{"evening", "grade-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := f.users.FindByID(b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"evening", "grade-3"}, []string(stored.Categories))

	_, err = f.students.AssignCategories(ctx, []uint{teacher.ID}, nil)
	assert.ErrorIs(t, err, util.ErrStudentNotFound)
}

func TestUpdateStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createStudent(t, "a")
	f.createStudent(t, "b")

	_, err := f.students.UpdateStudent(ctx, a.ID, UpdateStudentReq{Email: strPtr("b@example.com")})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	_, err = f.students.UpdateStudent(ctx, a.ID, UpdateStudentReq{Email: strPtr("")})
	assert.ErrorIs(t, err, util.ErrValidation)

	updated, err := f.students.UpdateStudent(ctx, a.ID, UpdateStudentReq{
		Name:     strPtr("Amal"),
		Phone:    strPtr("0511111111"),
		Disabled: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Amal", updated.Name)
	assert.True(t, updated.Disabled)

	stored, err := f.users.FindByIdentifier("0511111111")
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.ID)
	assert.True(t, stored.Disabled)
}

func TestDeleteStudentRemovesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 1, 2)
	student := f.createStudent(t, "a")
	res, err := f.submissions.SubmitExam(ctx, student.ID, exam.ID, answers(exam, 0))
	require.NoError(t, err)
	require.NotNil(t, res.ReviewExamID)

	require.NoError(t, f.students.DeleteStudent(ctx, student.ID))

	_, err = f.users.FindByID(student.ID)
	assert.ErrorIs(t, err, util.ErrUserNotFound)
	_, err = f.progress.Find(student.ID, exam.ID)
	assert.ErrorIs(t, err, util.ErrProgressNotFound)
	_, err = f.reviews.FindByID(*res.ReviewExamID)
	assert.ErrorIs(t, err, util.ErrReviewExamNotFound)
	assert.Contains(t, f.notes.names(), util.EventStudentDeleted)

	assert.ErrorIs(t, f.students.DeleteStudent(ctx, student.ID), util.ErrStudentNotFound)
}

func TestListStudentsSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createStudent(t, "hala")
	f.createStudent(t, "huda")
	f.createStudent(t, "omar")

	list, total, err := f.students.ListStudents(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 2)

	list, total, err = f.students.ListStudents(ctx, 1, 10, " h ")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}
