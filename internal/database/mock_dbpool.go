package database

import (
	"context"

	"github.com/pashagolub/pgxmock/v4"
)

// MockDBPool adapts a pgxmock pool to the Database interface for tests.
type MockDBPool struct {
	mock   pgxmock.PgxPoolIface
	driver DBType
}

var _ Database = (*MockDBPool)(nil)

func NewMockDBPool(mock pgxmock.PgxPoolIface) *MockDBPool {
	return &MockDBPool{mock: mock, driver: DBTypePostgres}
}

func NewMockDBPoolFromNewPool() (*MockDBPool, pgxmock.PgxPoolIface, error) {
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		return nil, nil, err
	}
	return NewMockDBPool(mockPool), mockPool, nil
}

// WithDriver makes the mock report another driver, to exercise
// driver-specific SQL.
func (m *MockDBPool) WithDriver(driver DBType) *MockDBPool {
	m.driver = driver
	return m
}

func (m *MockDBPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := m.mock.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxRows{Rows: rows}, nil
}

func (m *MockDBPool) QueryRow(ctx context.Context, query string, args ...any) Row {
	return PgxRow{Row: m.mock.QueryRow(ctx, query, args...)}
}

func (m *MockDBPool) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := m.mock.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxResult{CommandTag: tag}, nil
}

func (m *MockDBPool) Driver() DBType { return m.driver }

func (m *MockDBPool) HealthCheck(ctx context.Context) error {
	return m.mock.Ping(ctx)
}

func (m *MockDBPool) IsReady() bool { return m.mock != nil }

func (m *MockDBPool) Close() error {
	m.mock.Close()
	return nil
}

func (m *MockDBPool) ExpectationsWereMet() error {
	return m.mock.ExpectationsWereMet()
}

func (m *MockDBPool) PgxMock() pgxmock.PgxPoolIface {
	return m.mock
}
