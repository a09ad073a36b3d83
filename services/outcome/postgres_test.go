package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/services/providers"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStore(db, zap.NewNop()), mock
}

func TestPostgresStore_InitSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS routing_outcomes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert(t *testing.T) {
	store, mock := newMockStore(t)

	event := Event{
		ID:               uuid.New(),
		RouteID:          uuid.New(),
		ProviderID:       "openai",
		ProviderKind:     providers.KindOpenAI,
		Model:            "gpt-4",
		Attempt:          1,
		Success:          true,
		PromptTokens:     10,
		CompletionTokens: 5,
		Cost:             0.00045,
		Latency:          150 * time.Millisecond,
		Timestamp:        time.Now(),
	}

	mock.ExpectExec("INSERT INTO routing_outcomes").
		WithArgs(
			event.ID, event.RouteID, "openai", "openai", "gpt-4", 1, true,
			"", 10, 5, 0.00045, int64(150), event.Timestamp,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Insert(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO routing_outcomes").
		WillReturnError(errors.New("connection reset"))

	err := store.Insert(context.Background(), Event{ID: uuid.New(), RouteID: uuid.New()})
	assert.ErrorContains(t, err, "failed to insert outcome event")
}

func TestPostgresStore_Cleanup(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM routing_outcomes WHERE timestamp").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	rows, err := store.Cleanup(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
