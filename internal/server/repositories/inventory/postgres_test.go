package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveDrawers_GroupsTools(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "number", "name", "description", "id", "name", "code", "description", "position", "quantity"}
	mock.ExpectQuery(`(?s)FROM\s+drawers\s+d\s+LEFT\s+JOIN\s+tools\s+t\s+ON\s+t\.drawer_id\s*=\s*d\.id\s+AND\s+t\.active\s+WHERE\s+d\.active\s+ORDER\s+BY\s+d\.number,\s*t\.position,\s*t\.name`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(10), 1, "Gaveta 1", "", int64(1), "Alicate", "ALC-01", "corte", 1, 1).
			AddRow(int64(10), 1, "Gaveta 1", "", int64(2), "Chave", "CHV-01", "", 2, 3).
			AddRow(int64(11), 2, "Gaveta 2", "vazia", nil, nil, nil, nil, nil, nil).
			AddRow(int64(12), 3, "Gaveta 3", "", int64(5), "Martelo", "MRT-01", "", 1, 1))

	got, err := NewPostgresRepository(db).ActiveDrawers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].Number)
	require.Len(t, got[0].Tools, 2)
	assert.Equal(t, "Alicate", got[0].Tools[0].Name)
	assert.Equal(t, 3, got[0].Tools[1].Quantity)
	require.NotNil(t, got[0].Tools[1].DrawerNumber)
	assert.Equal(t, 1, *got[0].Tools[1].DrawerNumber)

	assert.Empty(t, got[1].Tools)
	assert.NotNil(t, got[1].Tools)
	assert.Equal(t, "vazia", got[1].Description)

	require.Len(t, got[2].Tools, 1)
	assert.Equal(t, "Gaveta 3", got[2].Tools[0].DrawerName)
}

func TestActiveDrawers_DBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+drawers`).WillReturnError(errors.New("db down"))

	_, err = NewPostgresRepository(db).ActiveDrawers(context.Background())
	assert.ErrorContains(t, err, "db error")
}
