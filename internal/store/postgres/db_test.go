package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStatementTimeout_Default(t *testing.T) {
	resolved, err := resolveStatementTimeout(0)
	require.NoError(t, err)
	assert.Equal(t, defaultStatementTimeout, resolved)
}

func TestResolveStatementTimeout_Override(t *testing.T) {
	resolved, err := resolveStatementTimeout(45 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, resolved)
}

func TestResolveStatementTimeout_OutOfRange(t *testing.T) {
	_, err := resolveStatementTimeout(-time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of allowed range")

	_, err = resolveStatementTimeout(2 * time.Hour)
	require.Error(t, err)
}

func TestAppendStatementTimeout(t *testing.T) {
	assert.Equal(t,
		"postgres://h/db?options=-c%20statement_timeout%3D30000",
		appendStatementTimeout("postgres://h/db", 30000),
	)
	assert.Equal(t,
		"postgres://h/db?sslmode=disable&options=-c%20statement_timeout%3D30000",
		appendStatementTimeout("postgres://h/db?sslmode=disable", 30000),
	)
}
