package service

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StudentService struct {
	DB           *gorm.DB
	UserRepo     *repository.UserRepository
	ExamRepo     *repository.ExamRepository
	ProgressRepo *repository.ProgressRepository
	ReviewRepo   *repository.ReviewExamRepository
	Notifier     Publisher
}

func NewStudentService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	examRepo *repository.ExamRepository,
	progressRepo *repository.ProgressRepository,
	reviewRepo *repository.ReviewExamRepository,
	notifier Publisher,
) *StudentService {
	return &StudentService{
		DB:           db,
		UserRepo:     userRepo,
		ExamRepo:     examRepo,
		ProgressRepo: progressRepo,
		ReviewRepo:   reviewRepo,
		Notifier:     notifier,
	}
}

type CreateStudentReq struct {
	Name       string   `json:"name" binding:"required,max=100"`
	Email      string   `json:"email" binding:"omitempty,email,max=100"`
	Phone      string   `json:"phone" binding:"omitempty,max=32"`
	Password   string   `json:"password" binding:"required,min=6,max=72"`
	Language   string   `json:"language" binding:"omitempty,oneof=ar en"`
	Categories []string `json:"categories"`
}

type UpdateStudentReq struct {
	Name       *string   `json:"name" binding:"omitempty,min=1,max=100"`
	Email      *string   `json:"email" binding:"omitempty,email,max=100"`
	Phone      *string   `json:"phone" binding:"omitempty,max=32"`
	Password   *string   `json:"password" binding:"omitempty,min=6,max=72"`
	Language   *string   `json:"language" binding:"omitempty,oneof=ar en"`
	Categories *[]string `json:"categories"`
	Disabled   *bool     `json:"disabled"`
}

type ExamIDsReq struct {
	ExamIDs []uint `json:"examIds" binding:"required,min=1"`
}

type AssignCategoriesReq struct {
	StudentIDs []uint   `json:"studentIds" binding:"required,min=1"`
	Categories []string `json:"categories" binding:"required"`
}

type StudentDetail struct {
	Student  *model.User          `json:"student"`
	Progress []model.ExamProgress `json:"progress"`
}

var (
	lockableStatuses   = []model.ProgressStatus{model.StatusUnlocked, model.StatusInProgress}
	unlockableStatuses = []model.ProgressStatus{model.StatusLocked}
)

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *StudentService) checkContact(ctx context.Context, email, phone *string, excludeID uint) error {
	repo := s.UserRepo.WithContext(ctx)
	if email != nil {
		taken, err := repo.EmailTaken(*email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return util.ErrEmailRegistered
		}
	}
	if phone != nil {
		taken, err := repo.PhoneTaken(*phone, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return util.ErrPhoneRegistered
		}
	}
	return nil
}

func (s *StudentService) ListStudents(ctx context.Context, page, limit int, search string) ([]model.User, int64, error) {
	return s.UserRepo.WithContext(ctx).ListStudents(page, limit, strings.TrimSpace(search))
}

func (s *StudentService) GetStudent(ctx context.Context, id uint) (*StudentDetail, error) {
	student, err := s.UserRepo.WithContext(ctx).FindStudentByID(id)
	if err != nil {
		return nil, err
	}
	progress, err := s.ProgressRepo.WithContext(ctx).ListByUser(id)
	if err != nil {
		return nil, err
	}
	return &StudentDetail{Student: student, Progress: progress}, nil
}

// CreateStudent registers a student and gives them an entry for every active
// exam; only the opening exam starts unlocked.
func (s *StudentService) CreateStudent(ctx context.Context, req CreateStudentReq) (*model.User, error) {
	email, phone := optional(req.Email), optional(req.Phone)
	if email == nil && phone == nil {
		return nil, util.NewValidationError(util.NewFieldError("email", "ValidationRequired", map[string]any{"Field": "email"}))
	}
	if err := s.checkContact(ctx, email, phone, 0); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	categories := req.Categories
	if categories == nil {
		categories = []string{}
	}
	student := &model.User{
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		Phone:      phone,
		Password:   hashed,
		Role:       model.Student,
		Language:   req.Language,
		Categories: datatypes.NewJSONSlice(categories),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.UserRepo.WithTx(tx).Create(student); err != nil {
			return err
		}
		exams, err := s.ExamRepo.WithTx(tx).ListActive()
		if err != nil {
			return err
		}
		progress := s.ProgressRepo.WithTx(tx)
		for i := range exams {
			status := model.StatusLocked
			if exams[i].IsFirst() {
				status = model.StatusUnlocked
			}
			if _, err := progress.CreateIfMissing(&model.ExamProgress{
				UserID:    student.ID,
				ExamID:    exams[i].ID,
				ExamGroup: exams[i].ExamGroup,
				Status:    status,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Student created", zap.Uint("userId", student.ID))
	s.Notifier.Publish(util.EventStudentAdded, map[string]interface{}{
		"userId": student.ID,
		"name":   student.Name,
	})
	return student, nil
}

func (s *StudentService) UpdateStudent(ctx context.Context, id uint, req UpdateStudentReq) (*model.User, error) {
	student, err := s.UserRepo.WithContext(ctx).FindStudentByID(id)
	if err != nil {
		return nil, err
	}

	var email, phone *string
	if req.Email != nil {
		email = optional(*req.Email)
	}
	if req.Phone != nil {
		phone = optional(*req.Phone)
	}
	if err := s.checkContact(ctx, email, phone, id); err != nil {
		return nil, err
	}

	if req.Name != nil {
		student.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		student.Email = email
	}
	if req.Phone != nil {
		student.Phone = phone
	}
	if student.Email == nil && student.Phone == nil {
		return nil, util.NewValidationError(util.NewFieldError("email", "ValidationRequired", map[string]any{"Field": "email"}))
	}
	if req.Password != nil {
		hashed, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		student.Password = hashed
	}
	if req.Language != nil {
		student.Language = *req.Language
	}
	if req.Categories != nil {
		student.Categories = datatypes.NewJSONSlice(*req.Categories)
	}
	if req.Disabled != nil {
		student.Disabled = *req.Disabled
	}

	if err := s.UserRepo.WithContext(ctx).Update(student); err != nil {
		return nil, err
	}
	return student, nil
}

// DeleteStudent removes the student with their ledger and review exams.
func (s *StudentService) DeleteStudent(ctx context.Context, id uint) error {
	student, err := s.UserRepo.WithContext(ctx).FindStudentByID(id)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ReviewRepo.WithTx(tx).DeleteByUser(id); err != nil {
			return err
		}
		if err := s.ProgressRepo.WithTx(tx).DeleteByUser(id); err != nil {
			return err
		}
		return s.UserRepo.WithTx(tx).Delete(id)
	})
	if err != nil {
		return err
	}

	logger.Log.Info("Student deleted", zap.Uint("userId", id))
	s.Notifier.Publish(util.EventStudentDeleted, map[string]interface{}{
		"userId": id,
		"name":   student.Name,
	})
	return nil
}

// LockExams locks the given exams for the student. Completed entries are
// left alone. It returns the number of entries changed.
func (s *StudentService) LockExams(ctx context.Context, studentID uint, examIDs []uint) (int64, error) {
	if _, err := s.UserRepo.WithContext(ctx).FindStudentByID(studentID); err != nil {
		return 0, err
	}
	return s.ProgressRepo.WithContext(ctx).SetStatusForExams(studentID, examIDs, lockableStatuses, model.StatusLocked)
}

// UnlockExams unlocks locked entries. An active exam the student has no entry
// for yet gets one, already unlocked.
func (s *StudentService) UnlockExams(ctx context.Context, studentID uint, examIDs []uint) (int64, error) {
	if _, err := s.UserRepo.WithContext(ctx).FindStudentByID(studentID); err != nil {
		return 0, err
	}

	var changed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		progress := s.ProgressRepo.WithTx(tx)
		n, err := progress.SetStatusForExams(studentID, examIDs, unlockableStatuses, model.StatusUnlocked)
		if err != nil {
			return err
		}
		changed = n

		for _, examID := range examIDs {
			exam, err := s.ExamRepo.WithTx(tx).FindActiveByID(examID)
			if errors.Is(err, util.ErrExamNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			created, err := progress.CreateIfMissing(&model.ExamProgress{
				UserID:    studentID,
				ExamID:    exam.ID,
				ExamGroup: exam.ExamGroup,
				Status:    model.StatusUnlocked,
			})
			if err != nil {
				return err
			}
			if created {
				changed++
			}
		}
		return nil
	})
	return changed, err
}

func (s *StudentService) LockGroup(ctx context.Context, studentID uint, group int) (int64, error) {
	if !validGroup(group) {
		return 0, util.ErrInvalidExamGroup
	}
	if _, err := s.UserRepo.WithContext(ctx).FindStudentByID(studentID); err != nil {
		return 0, err
	}
	return s.ProgressRepo.WithContext(ctx).SetStatusForGroup(studentID, group, lockableStatuses, model.StatusLocked)
}

func (s *StudentService) UnlockGroup(ctx context.Context, studentID uint, group int) (int64, error) {
	if !validGroup(group) {
		return 0, util.ErrInvalidExamGroup
	}
	if _, err := s.UserRepo.WithContext(ctx).FindStudentByID(studentID); err != nil {
		return 0, err
	}
	exams, err := s.ExamRepo.WithContext(ctx).ListActiveByGroup(group)
	if err != nil {
		return 0, err
	}
	if len(exams) == 0 {
		return 0, nil
	}
	ids := make([]uint, len(exams))
	for i := range exams {
		ids[i] = exams[i].ID
	}
	return s.UnlockExams(ctx, studentID, ids)
}

// AssignCategories replaces the category list of every listed student.
func (s *StudentService) AssignCategories(ctx context.Context, studentIDs []uint, categories []string) (int, error) {
	if categories == nil {
		categories = []string{}
	}
	students, err := s.UserRepo.WithContext(ctx).FindStudentsByIDs(studentIDs)
	if err != nil {
		return 0, err
	}
	if len(students) == 0 {
		return 0, util.ErrStudentNotFound
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.UserRepo.WithTx(tx)
		for i := range students {
			students[i].Categories = datatypes.NewJSONSlice(categories)
			if err := users.Update(&students[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(students), nil
}
