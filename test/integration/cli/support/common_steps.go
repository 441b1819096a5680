package support

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// commandTimeout bounds a single CLI invocation.
const commandTimeout = 60 * time.Second

// iRunCommand executes command from the project root.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	testCtx.LastOutput = stdout.String()
	if stderr.Len() > 0 {
		testCtx.LastOutput += "\n" + stderr.String()
	}
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// jsonPart returns the first JSON document in the output. Log lines go to
// stderr after stdout, so the document starts at the first brace.
func jsonPart(output string) (string, error) {
	output = strings.TrimSpace(output)
	start := strings.IndexAny(output, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON found in output: %s", output)
	}
	dec := json.NewDecoder(strings.NewReader(output[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", fmt.Errorf("output is not valid JSON: %w", err)
	}
	return string(raw), nil
}

// theOutputShouldBeValidJSON verifies the output is valid JSON.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := jsonPart(testCtx.LastOutput)
	return err
}

// theJSONShouldContain verifies the output JSON has a field. Nested fields
// are separated by dots.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	part, err := jsonPart(testCtx.LastOutput)
	if err != nil {
		return err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(part), &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return checkFieldExists(data, field)
}

func checkFieldExists(data map[string]any, field string) error {
	parts := strings.Split(field, ".")
	current := data
	for i, part := range parts {
		val, exists := current[part]
		if !exists {
			return fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return nil
		}
		next, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot navigate deeper into non-object field '%s'", part)
		}
		current = next
	}
	return nil
}

// theOutputShouldBeValidCSV verifies the standard output parses as CSV with
// the match record header.
func (testCtx *TestContext) theOutputShouldBeValidCSV() error {
	stdout, _, _ := strings.Cut(testCtx.LastOutput, "\n{")
	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) != 14 || rows[0][0] != "x1" {
		return fmt.Errorf("unexpected CSV header: %v", rows)
	}
	return nil
}

// matchRecords returns the lines of the output that consist only of numbers.
func (testCtx *TestContext) matchRecords() [][]string {
	var records [][]string
	for _, line := range strings.Split(testCtx.LastOutput, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		numeric := true
		for _, f := range fields {
			if _, err := strconv.ParseFloat(f, 64); err != nil {
				numeric = false
				break
			}
		}
		if numeric {
			records = append(records, fields)
		}
	}
	return records
}

// theOutputShouldHaveAtLeastMatchRecords counts numeric output lines.
func (testCtx *TestContext) theOutputShouldHaveAtLeastMatchRecords(n int) error {
	if got := len(testCtx.matchRecords()); got < n {
		return fmt.Errorf("expected at least %d match records, got %d\nOutput: %s", n, got, testCtx.LastOutput)
	}
	return nil
}

// everyMatchRecordShouldHaveFields checks the width of every record.
func (testCtx *TestContext) everyMatchRecordShouldHaveFields(n int) error {
	for i, rec := range testCtx.matchRecords() {
		if len(rec) != n {
			return fmt.Errorf("record %d has %d fields, want %d", i, len(rec), n)
		}
	}
	return nil
}

// theErrorShouldMention verifies the error output contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}
	full := testCtx.LastOutput
	if testCtx.LastError != nil {
		full += " " + testCtx.LastError.Error()
	}
	if !strings.Contains(strings.ToLower(full), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, full)
	}
	return nil
}

// theFileShouldExist checks a path after variable substitution.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.substituteCommandVariables(filename)
	if !filepath.IsAbs(path) {
		path = filepath.Join(testCtx.WorkingDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty", path)
	}
	return nil
}

// theFileShouldContain checks the file content after variable substitution.
func (testCtx *TestContext) theFileShouldContain(filename, expected string) error {
	path := testCtx.substituteCommandVariables(filename)
	data, err := os.ReadFile(path) //nolint:gosec // G304: scenario controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain '%s'", path, expected)
	}
	return nil
}

// aConfigFileWith writes content to path after variable substitution.
func (testCtx *TestContext) aConfigFileWith(filename string, content *godog.DocString) error {
	path := testCtx.substituteCommandVariables(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content.Content), 0o600)
}

// theEnvironmentVariableIsSetTo adds an environment variable for later commands.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, value)
	return nil
}

// RegisterCommonSteps registers command, output and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)

	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the output should be valid CSV$`, testCtx.theOutputShouldBeValidCSV)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the output should have at least (\d+) match records?$`, testCtx.theOutputShouldHaveAtLeastMatchRecords)
	sc.Step(`^every match record should have (\d+) fields$`, testCtx.everyMatchRecordShouldHaveFields)

	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^a config file "([^"]*)" with:$`, testCtx.aConfigFileWith)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}
