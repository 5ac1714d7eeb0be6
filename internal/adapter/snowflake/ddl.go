package snowflake

import (
	"strings"

	"github.com/snowsentry/snowsentry/internal/core/domain"
)

// procedureDDL renders the CREATE PROCEDURE statement for a text-backed
// registration. The body wraps the check's SQL in a SQL-scripting block
// returning the result set.
func procedureDDL(reg domain.Registration) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if reg.Replace {
		b.WriteString("OR REPLACE ")
	}
	b.WriteString("PROCEDURE ")
	b.WriteString(reg.Name)
	b.WriteString("()\nRETURNS TABLE (")
	for i, col := range reg.Returns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(sqlType(col.Type))
	}
	b.WriteString(")\nLANGUAGE SQL\n")
	if reg.ExecuteAsCaller {
		b.WriteString("EXECUTE AS CALLER\n")
	}
	b.WriteString("AS\n$$\nBEGIN\n    LET rs RESULTSET := (")
	b.WriteString(strings.TrimSuffix(strings.TrimSpace(reg.Body), ";"))
	b.WriteString(");\n    RETURN TABLE(rs);\nEND;\n$$")
	return b.String()
}

// sqlType maps the catalog's portable column types to Snowflake types.
func sqlType(t string) string {
	switch strings.ToLower(t) {
	case "string":
		return "VARCHAR"
	case "integer":
		return "NUMBER"
	case "float":
		return "FLOAT"
	case "boolean":
		return "BOOLEAN"
	case "timestamp":
		return "TIMESTAMP_NTZ"
	default:
		return strings.ToUpper(t)
	}
}
