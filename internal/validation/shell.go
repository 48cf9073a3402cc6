package validation

import (
	"regexp"
	"strings"
)

// DefaultAllowedCommands is the stock allow-list for shell steps. Configurable
// per deployment.
var DefaultAllowedCommands = []string{
	"awk", "sed", "cp", "mv", "rm", "curl", "cat", "grep", "cut",
	"sort", "uniq", "head", "tail", "wc", "echo", "[", "test", "set",
}

// dangerousCommands always produce a hard error, even when a deployment adds
// them to the allow-list by mistake.
var dangerousCommands = map[string]bool{
	"rmdir": true, "dd": true, "mkfs": true, "fdisk": true, "format": true,
	"shutdown": true, "reboot": true, "halt": true, "poweroff": true, "init": true,
	"kill": true, "killall": true, "pkill": true, "wget": true,
}

// controlKeywords are shell syntax, not commands.
var controlKeywords = map[string]bool{
	"if": true, "then": true, "fi": true, "else": true, "elif": true,
	"do": true, "done": true, "while": true, "for": true, "case": true,
	"esac": true, "{": true, "}": true,
}

var (
	doubleQuoted  = regexp.MustCompile(`"[^"]*"`)
	singleQuoted  = regexp.MustCompile(`'[^']*'`)
	varAssignment = regexp.MustCompile(`\b\w+=[^\s;|&]+`)
	cmdSubst      = regexp.MustCompile(`\$\(([^)]+)\)`)
	backtickSubst = regexp.MustCompile("`([^`]+)`")
	redirection   = regexp.MustCompile(`\d*>[>&]?\S*|<\S*`)
	separator     = regexp.MustCompile(`[|;&]+`)
	fileReference = regexp.MustCompile(`[\w./-]+\.(?:csv|json|txt|log)`)
)

// validateShellStep checks one shell step's command tokens and file references.
func (v *Validator) validateShellStep(stepNumber int, content string) (errors, warnings []Issue) {
	if strings.TrimSpace(content) == "" {
		errors = append(errors, Issue{
			StepNumber: stepNumber,
			Type:       IssueEmptyStep,
			Message:    "shell step has empty content",
		})
		return errors, warnings
	}

	for _, cmd := range ExtractCommands(content) {
		if dangerousCommands[cmd] {
			errors = append(errors, Issue{
				StepNumber: stepNumber,
				Type:       IssueDangerousCommand,
				Message:    "dangerous command '" + cmd + "' is not permitted",
			})
			continue
		}
		if !v.allowed[cmd] {
			warnings = append(warnings, Issue{
				StepNumber: stepNumber,
				Type:       IssueUnknownCommand,
				Message:    "command '" + cmd + "' is outside the allow-list",
			})
		}
	}

	for _, ref := range ExtractFileReferences(content) {
		// Absolute paths and the sandbox scratch dir are not context files.
		if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "tmp/") {
			continue
		}
		if v.resources != nil && v.resources.File(ref) == nil && v.resources.File(strings.TrimPrefix(ref, "data/")) == nil {
			warnings = append(warnings, Issue{
				StepNumber: stepNumber,
				Type:       IssueFileNotFound,
				Message:    "file '" + ref + "' not found in resource context",
				Available:  v.knownFiles(),
			})
		}
	}

	return errors, warnings
}

// ExtractCommands pulls the command tokens out of a shell fragment. It skips
// quoted strings, variable assignments, redirections, and control keywords,
// and descends into $(...) and backtick substitutions.
func ExtractCommands(content string) []string {
	seen := map[string]bool{}
	var commands []string
	add := func(cmd string) {
		if cmd == "" || controlKeywords[cmd] || seen[cmd] {
			return
		}
		seen[cmd] = true
		commands = append(commands, cmd)
	}

	for _, m := range cmdSubst.FindAllStringSubmatch(content, -1) {
		for _, cmd := range simpleCommands(m[1]) {
			add(cmd)
		}
	}
	for _, m := range backtickSubst.FindAllStringSubmatch(content, -1) {
		for _, cmd := range simpleCommands(m[1]) {
			add(cmd)
		}
	}

	cleaned := doubleQuoted.ReplaceAllString(content, "")
	cleaned = singleQuoted.ReplaceAllString(cleaned, "")
	cleaned = varAssignment.ReplaceAllString(cleaned, "")
	for _, cmd := range simpleCommands(cleaned) {
		add(cmd)
	}
	return commands
}

// simpleCommands splits a fragment at pipes, semicolons, and ampersands and
// returns the first token of each simple command.
func simpleCommands(content string) []string {
	content = doubleQuoted.ReplaceAllString(content, "")
	content = singleQuoted.ReplaceAllString(content, "")
	content = redirection.ReplaceAllString(content, "")

	var commands []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, part := range separator.Split(line, -1) {
			// Skip leading control keywords and assignments so constructs
			// like `if test -f x` still surface the command token.
			for _, token := range strings.Fields(part) {
				if controlKeywords[token] || token == "!" {
					continue
				}
				if strings.Contains(token, "=") {
					break
				}
				commands = append(commands, token)
				break
			}
		}
	}
	return commands
}

// ExtractFileReferences finds data-file path tokens in a shell fragment.
func ExtractFileReferences(content string) []string {
	seen := map[string]bool{}
	var refs []string
	for _, ref := range fileReference.FindAllString(content, -1) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
