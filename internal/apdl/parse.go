package apdl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/san-kum/vivsim/internal/viv"
)

var parameterLine = regexp.MustCompile(`PARAMETER\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(\S+)`)

// getParameter returns the parameter name set by a *GET command.
func getParameter(cmd string) (string, bool) {
	fields := strings.Split(cmd, ",")
	if len(fields) < 2 || !strings.EqualFold(strings.TrimSpace(fields[0]), "*GET") {
		return "", false
	}
	name := strings.TrimSpace(fields[1])
	return strings.ToUpper(name), name != ""
}

// parseParameter finds the echoed value of name in solver output.
func parseParameter(out, name string) (float64, error) {
	for _, m := range parameterLine.FindAllStringSubmatch(out, -1) {
		if !strings.EqualFold(m[1], name) {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s: %w", name, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("parameter %s not in solver output", name)
}

// commandErrors returns the messages of every *** ERROR *** block.
func commandErrors(out string) []string {
	lines := strings.Split(out, "\n")
	var msgs []string
	for i := 0; i < len(lines); i++ {
		if !strings.Contains(lines[i], "*** ERROR ***") {
			continue
		}
		msg := "unspecified error"
		for j := i + 1; j < len(lines); j++ {
			if s := strings.TrimSpace(lines[j]); s != "" {
				msg = s
				i = j
				break
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func hasWarning(out string) bool {
	return strings.Contains(out, "*** WARNING ***")
}

// parseDisplacements reads a PRNSOL,U,COMP listing. Rows are a node number
// followed by UX UY UZ (and USUM).
func parseDisplacements(out string) []viv.NodalDisplacement {
	var rows []viv.NodalDisplacement
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) < 4 {
			continue
		}
		node, err := strconv.Atoi(f[0])
		if err != nil {
			continue
		}
		var u [3]float64
		ok := true
		for k := range u {
			if u[k], err = strconv.ParseFloat(f[k+1], 64); err != nil {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, viv.NodalDisplacement{Node: node, UX: u[0], UY: u[1], UZ: u[2]})
		}
	}
	return rows
}

// num formats a float the way APDL reads it back without loss.
func num(v float64) string {
	return strconv.FormatFloat(v, 'G', -1, 64)
}
