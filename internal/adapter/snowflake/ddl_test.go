package snowflake

import (
	"strings"
	"testing"

	"github.com/snowsentry/snowsentry/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestProcedureDDL_Replace(t *testing.T) {
	t.Parallel()
	ddl := procedureDDL(domain.Registration{
		Name: "NUM_FAILURES",
		Returns: domain.Schema{
			{Name: "user_name", Type: "string"},
			{Name: "num_of_failures", Type: "integer"},
		},
		Body:            "select user_name, count(*) as num_of_failures from t group by user_name;",
		ExecuteAsCaller: true,
		Replace:         true,
	})

	assert.True(t, strings.HasPrefix(ddl, "CREATE OR REPLACE PROCEDURE NUM_FAILURES()"))
	assert.Contains(t, ddl, "RETURNS TABLE (user_name VARCHAR, num_of_failures NUMBER)")
	assert.Contains(t, ddl, "LANGUAGE SQL")
	assert.Contains(t, ddl, "EXECUTE AS CALLER")
	assert.Contains(t, ddl, "LET rs RESULTSET := (select user_name, count(*) as num_of_failures from t group by user_name);")
	assert.Contains(t, ddl, "RETURN TABLE(rs);")
	assert.NotContains(t, ddl, ");;", "trailing semicolon of the body must be stripped")
}

func TestProcedureDDL_NoReplace(t *testing.T) {
	t.Parallel()
	ddl := procedureDDL(domain.Registration{
		Name:    "PROBE",
		Returns: domain.Schema{{Name: "n", Type: "integer"}},
		Body:    "select 1 as n",
	})

	assert.True(t, strings.HasPrefix(ddl, "CREATE PROCEDURE PROBE()"))
	assert.NotContains(t, ddl, "OR REPLACE")
	assert.NotContains(t, ddl, "EXECUTE AS CALLER")
}

func TestSQLType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "VARCHAR", sqlType("string"))
	assert.Equal(t, "NUMBER", sqlType("integer"))
	assert.Equal(t, "FLOAT", sqlType("float"))
	assert.Equal(t, "BOOLEAN", sqlType("boolean"))
	assert.Equal(t, "TIMESTAMP_NTZ", sqlType("timestamp"))
	assert.Equal(t, "VARIANT", sqlType("variant"))
}
