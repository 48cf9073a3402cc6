package llm

import (
	"fmt"
	"strings"

	"github.com/jonathan/queryforge/internal/resources"
)

// DescribeTables renders the table portion of the resource context for a
// prompt, one line per table.
func DescribeTables(rc *resources.Context) string {
	if rc == nil || len(rc.Database.Tables) == 0 {
		return "No tables available"
	}
	var lines []string
	for _, table := range rc.Database.Tables {
		var cols []string
		for _, col := range table.Columns {
			cols = append(cols, fmt.Sprintf("%s (%s)", col.Name, col.Type))
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", table.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(lines, "\n")
}

// DescribeFiles renders the file portion of the resource context for a
// prompt, one line per file with its known shape.
func DescribeFiles(rc *resources.Context) string {
	if rc == nil || len(rc.Filesystem.Files) == 0 {
		return "No files available"
	}
	var lines []string
	for _, file := range rc.Filesystem.Files {
		switch file.Type {
		case "csv":
			lines = append(lines, fmt.Sprintf("- %s (CSV with %d rows, columns: %s)",
				file.Path, file.RowCountEstimate, strings.Join(file.Headers, ", ")))
		case "json":
			if file.Structure == nil {
				lines = append(lines, fmt.Sprintf("- %s (JSON)", file.Path))
			} else if file.Structure.RootType == "array" {
				lines = append(lines, fmt.Sprintf("- %s (JSON array with %d items, fields: %s)",
					file.Path, file.Structure.ArrayLength, strings.Join(file.Structure.ElementKeys, ", ")))
			} else {
				lines = append(lines, fmt.Sprintf("- %s (JSON object with keys: %s)",
					file.Path, strings.Join(file.Structure.Keys, ", ")))
			}
		case "text":
			lines = append(lines, fmt.Sprintf("- %s (text, %d lines)", file.Path, file.LineCount))
		default:
			lines = append(lines, fmt.Sprintf("- %s (%s)", file.Path, file.Type))
		}
	}
	return strings.Join(lines, "\n")
}

// BuildGenerationPrompt constructs the full prompt for turning a natural
// language request into pipeline steps.
func BuildGenerationPrompt(request string, rc *resources.Context, allowedCommands []string) string {
	var sb strings.Builder
	sb.WriteString(`You are an expert data pipeline generator. Your task is to create executable shell and SQL pipeline steps from natural language requests.

DATABASE INFORMATION:
- Database type: SQLite. Use standard SQLite SQL syntax only.
- SQL steps are executed directly by the engine; never invoke a database CLI from a shell step.
- SQL step content must be actual SQL code, not a file path.
- Before INSERT into a new table, use CREATE TABLE IF NOT EXISTS.

AVAILABLE RESOURCES:

Database Tables:
`)
	sb.WriteString(DescribeTables(rc))
	sb.WriteString("\n\nAvailable Files:\n")
	sb.WriteString(DescribeFiles(rc))
	sb.WriteString("\n\nCONSTRAINTS:\n")
	sb.WriteString("1. ONLY reference tables and files listed above\n")
	sb.WriteString("2. For shell steps, ONLY use these commands: ")
	sb.WriteString(strings.Join(allowedCommands, ", "))
	sb.WriteString(`
3. Generate steps in proper execution order
4. Match field names between source files and database columns exactly; never invent data for fields absent from the source
5. If a source file lacks required table columns, use UPDATE on matching rows instead of INSERT

OUTPUT FORMAT (strict JSON):
{
  "pipeline": [
    {
      "step_number": 1,
      "type": "shell",
      "content": "exact shell command",
      "description": "what this step does"
    },
    {
      "step_number": 2,
      "type": "query",
      "content": "exact SQL statement",
      "description": "what this step does"
    }
  ]
}

RULES:
- step_number must be sequential starting from 1
- type must be either "shell" or "query"
- content must be valid, executable code
- Your entire response must be ONLY the JSON object above, with no markdown formatting and no surrounding text

Task: `)
	sb.WriteString(request)
	sb.WriteString("\n\nGenerate a pipeline to complete this task.")
	return sb.String()
}
