package duck_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/duck"
	"github.com/malbeclabs/sensorlake/pkg/logger"
)

func testDataset() *dataset.Dataset {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return dataset.New([]dataset.Record{
		{Index: 0, Fecha: base, Temperatura: 20, Humedad: 50},
		{Index: 1, Fecha: base.Add(time.Hour), Temperatura: 21, Humedad: 52},
		{Index: 2, Fecha: base.Add(2 * time.Hour), Temperatura: 22, Humedad: 54},
	})
}

func openTestDB(t *testing.T, maxRows int) *duck.DB {
	t.Helper()
	db, err := duck.Open(context.Background(), &duck.Config{
		Logger:  logger.Discard(),
		Dataset: testDataset(),
		MaxRows: maxRows,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDuck_Config_Validate(t *testing.T) {
	t.Parallel()

	require.EqualError(t, (&duck.Config{Dataset: testDataset()}).Validate(), "logger is required")
	require.EqualError(t, (&duck.Config{Logger: logger.Discard()}).Validate(), "dataset is required")
	require.EqualError(t, (&duck.Config{Logger: logger.Discard(), Dataset: testDataset(), MaxRows: -1}).Validate(), "max rows must not be negative")

	cfg := &duck.Config{Logger: logger.Discard(), Dataset: testDataset()}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.MaxRows)
}

func TestDuck_DB_Query(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, 0)

	resp, err := db.Query(context.Background(), "SELECT avg(temperatura) AS avg_temp, max(humedad) AS max_hum FROM lecturas;")
	require.NoError(t, err)
	assert.Equal(t, []string{"avg_temp", "max_hum"}, resp.Columns)
	require.Equal(t, 1, resp.Count)
	assert.InDelta(t, 21.0, resp.Rows[0]["avg_temp"], 1e-9)
	assert.InDelta(t, 54.0, resp.Rows[0]["max_hum"], 1e-9)
}

func TestDuck_DB_QueryFormatsTimestamps(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, 0)

	resp, err := db.Query(context.Background(), "SELECT fecha FROM lecturas ORDER BY idx DESC LIMIT 1")
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "2024-01-01 02:00:00", resp.Rows[0]["fecha"])
}

func TestDuck_DB_QueryTruncates(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, 2)

	resp, err := db.Query(context.Background(), "SELECT * FROM lecturas ORDER BY idx")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.True(t, resp.Truncated)
}

func TestDuck_DB_RejectsWrites(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, 0)

	for _, q := range []string{
		"DELETE FROM lecturas",
		"DROP TABLE lecturas",
		"SELECT 1; DROP TABLE lecturas",
		"COPY lecturas TO 'out.csv'",
		"INSERT INTO lecturas VALUES (9, now(), 1, 1)",
	} {
		_, err := db.Query(context.Background(), q)
		assert.True(t, errors.Is(err, duck.ErrNotReadOnly), q)
	}

	_, err := db.Query(context.Background(), "   ")
	require.EqualError(t, err, "query is empty")

	resp, err := db.Query(context.Background(), "SELECT count(*) AS n FROM lecturas")
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Rows[0]["n"])
}

func TestDuck_DB_QueryError(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, 0)

	_, err := db.Query(context.Background(), "SELECT missing_column FROM lecturas")
	require.ErrorContains(t, err, "failed to execute query")
}

func TestDuck_DB_Describe(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, 0)
	assert.Contains(t, db.Describe(), "Table lecturas (3 rows)")
}
