package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/jacobarthurs/pginsights/internal/db"
)

type InputType string

const (
	InputJSON    InputType = "json"
	InputSQL     InputType = "sql"
	InputText    InputType = "text"
	InputUnknown InputType = "unknown"
)

// Input is analyzer input read from a file, stdin or an interactive paste.
type Input struct {
	Data []byte
	Type InputType
}

// NeedsConnection reports whether resolving the input requires a database.
func (in Input) NeedsConnection() bool {
	return in.Type == InputSQL
}

// ReadInput reads input from the named file, from stdin for "-", or
// interactively for "". The prompt is written to prompt.
func ReadInput(input string, stdin io.Reader, prompt io.Writer) (Input, error) {
	var (
		data []byte
		err  error
	)
	switch input {
	case "":
		data, err = readInteractive(stdin, prompt)
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return Input{}, err
	}
	return Input{Data: data, Type: detectType(data, input)}, nil
}

// Resolve turns input into a plan. JSON documents are parsed offline; SQL
// is explained through explainer, which may be nil for JSON input.
func Resolve(ctx context.Context, in Input, explainer db.Explainer) (ExplainOutput, error) {
	switch in.Type {
	case InputJSON:
		plans, err := ParseJSONPlan(in.Data)
		if err != nil {
			return ExplainOutput{}, err
		}
		return plans[0], nil
	case InputSQL:
		if explainer == nil {
			return ExplainOutput{}, fmt.Errorf("SQL input requires a database connection")
		}
		return Explain(ctx, explainer, string(in.Data))
	case InputText:
		return ExplainOutput{}, fmt.Errorf(`text format not supported - use JSON format:

EXPLAIN (FORMAT JSON) <your query>

Then provide the complete JSON output.`)
	default:
		return ExplainOutput{}, fmt.Errorf("unable to detect input type: expected JSON plan, SQL query, or .json/.sql file")
	}
}

func readInteractive(stdin io.Reader, prompt io.Writer) ([]byte, error) {
	fmt.Fprint(prompt, "Paste EXPLAIN (FORMAT JSON) output or SQL query")
	if runtime.GOOS == "windows" {
		fmt.Fprint(prompt, " (Ctrl+Z, Enter to submit)\n")
	} else {
		fmt.Fprint(prompt, " (Ctrl+D to submit)\n")
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if (strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")) && !json.Valid(data) {
		return nil, fmt.Errorf("input appears truncated; for large inputs use: pginsights query <file>")
	}
	return data, nil
}

var sqlPrefixes = []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "EXPLAIN", "TABLE", "VALUES"}

func detectType(data []byte, filename string) InputType {
	switch {
	case strings.HasSuffix(filename, ".json"):
		return InputJSON
	case strings.HasSuffix(filename, ".sql"):
		return InputSQL
	case strings.HasSuffix(filename, ".txt"):
		return InputText
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return InputJSON
	}
	if strings.Contains(trimmed, "(cost=") {
		return InputText
	}

	upper := strings.ToUpper(trimmed)
	for _, p := range sqlPrefixes {
		if strings.HasPrefix(upper, p) {
			return InputSQL
		}
	}
	return InputUnknown
}
