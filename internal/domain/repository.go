// Package domain defines the core interfaces and types for moim.
package domain

import (
	"context"
	"time"
)

// ProgramStore persists programs, enrollments and session marks.
type ProgramStore interface {
	SaveProgram(ctx context.Context, tenantID string, p *Program) error
	GetProgram(ctx context.Context, tenantID string, programID string) (*Program, error)
	ListPrograms(ctx context.Context, tenantID string) ([]*Program, error)

	SaveEnrollment(ctx context.Context, tenantID string, e *Enrollment) error
	GetEnrollment(ctx context.Context, tenantID string, programID, memberID string) (*Enrollment, error)
	ListEnrollments(ctx context.Context, tenantID string, programID string) ([]*Enrollment, error)

	// Attendance and report marks are upserted on (program, member, session date).
	SaveAttendance(ctx context.Context, tenantID string, rec *AttendanceRecord) error
	ListAttendance(ctx context.Context, tenantID string, programID, memberID string) ([]*AttendanceRecord, error)
	SaveReport(ctx context.Context, tenantID string, rec *ReportRecord) error
	ListReports(ctx context.Context, tenantID string, programID, memberID string) ([]*ReportRecord, error)
}

// DepositStore persists deposit settings and refund policy tables.
type DepositStore interface {
	SaveDepositSetting(ctx context.Context, tenantID string, s *DepositSetting) error
	GetDepositSetting(ctx context.Context, tenantID string, programID string) (*DepositSetting, error)

	SavePolicyTable(ctx context.Context, tenantID string, table *PolicyTable) error
	GetPolicyTable(ctx context.Context, tenantID string, programID string) (*PolicyTable, error)
	// ListPolicyTables returns the tables of tenantID plus the global ones.
	ListPolicyTables(ctx context.Context, tenantID string) ([]*PolicyTable, error)
}

// SurveyStore persists satisfaction surveys.
type SurveyStore interface {
	SaveSurvey(ctx context.Context, tenantID string, s *SurveyResponse) error
	GetSurvey(ctx context.Context, tenantID string, programID, memberID string) (*SurveyResponse, error)
}

// NotificationStore persists the notification log.
type NotificationStore interface {
	SaveNotification(ctx context.Context, tenantID string, n *Notification) error
	GetNotification(ctx context.Context, tenantID string, id string) (*Notification, error)
	ListNotifications(ctx context.Context, tenantID string, f NotificationFilter) ([]*Notification, error)
}

// ContentStore persists site content and its change log.
type ContentStore interface {
	GetContent(ctx context.Context, tenantID string, t EntityType, id string) (*ContentEntity, error)
	ListContent(ctx context.Context, tenantID string, t EntityType) ([]*ContentEntity, error)
	PutContent(ctx context.Context, tenantID string, e *ContentEntity) error
	DeleteContent(ctx context.Context, tenantID string, t EntityType, id string) error

	SaveChange(ctx context.Context, tenantID string, c *ContentChange) error
	GetChange(ctx context.Context, tenantID string, id string) (*ContentChange, error)
	ListChanges(ctx context.Context, tenantID string, f ChangeFilter) ([]*ContentChange, error)
	MarkRolledBack(ctx context.Context, tenantID string, id string, at time.Time) error
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	ProgramStore
	DepositStore
	SurveyStore
	NotificationStore
	ContentStore

	// WithTx runs fn against a repository bound to one database transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `env:"DRIVER" envDefault:"sqlite"`

	// SQLite specific
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./moim.db"`

	// PostgreSQL specific
	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     int    `env:"POSTGRES_PORT"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"`
}
