package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeImage = "image/"

	MaxImageSize = 5 << 20
)

var (
	AllowedImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
)

// realtime event names pushed to teacher sessions
const (
	EventExamSubmitted  = "exam-submitted"
	EventExamCreated    = "exam-created"
	EventStudentAdded   = "student-added"
	EventStudentDeleted = "student-deleted"
)
