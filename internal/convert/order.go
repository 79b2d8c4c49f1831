package convert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/stanhf/internal/model"
)

// Order check error codes (E250-E259)
const (
	ErrUndeclared   = "E250" // identifier used before its declaration
	ErrRedeclared   = "E251" // identifier declared twice
	ErrOrphanDecl   = "E252" // data declaration without a data card value
	ErrOrphanValue  = "E253" // data card value without a data declaration
	ErrOrphanInit   = "E254" // init card value without a parameter declaration
	ErrUnclosedBody = "E255" // block without a closing brace
)

// OrderError reports one statement that breaks declaration order or the
// agreement between the program and its cards.
type OrderError struct {
	Code    string `json:"code"`
	Block   string `json:"block,omitempty"`
	Line    int    `json:"line,omitempty"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e OrderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Name, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Name, e.Message)
}

var (
	blockOpen  = regexp.MustCompile(`^(data|transformed data|parameters|transformed parameters|model|generated quantities|functions) \{$`)
	identToken = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)
	declName   = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_]*)(?: = |;$)`)
)

var declKeywords = map[string]bool{
	"int": true, "real": true, "vector": true, "row_vector": true,
	"matrix": true, "array": true, "tuple": true,
}

// builtins are names the generated statements may use without declaring.
var builtins = map[string]bool{
	"int": true, "real": true, "vector": true, "row_vector": true,
	"matrix": true, "array": true, "tuple": true, "lower": true, "upper": true,
	"poisson": true, "poisson_rng": true, "poisson_real": true,
	"normal": true, "std_normal": true,
	"rep_vector": true, "sqrt": true, "square": true,
	"term_interp": true, "factor_interp": true,
}

type statement struct {
	block string
	line  int
	text  string
}

// CheckOrder verifies that every identifier in the program is declared
// before it is used, that nothing is declared twice, that the data block
// and the data card name the same variables, and that every init value
// names a sampled parameter. All problems are returned; nil means the
// program is consistent. The functions block is not inspected.
func CheckOrder(p *Program) []OrderError {
	stmts, errs := statements(p.Text)

	declared := make(map[string]int)
	blockDecls := make(map[string][]string)
	for _, st := range stmts {
		name := ""
		if first := identToken.FindString(st.text); declKeywords[first] {
			if m := declName.FindStringSubmatch(st.text); m != nil {
				name = m[1]
			}
		}
		for _, id := range identToken.FindAllString(st.text, -1) {
			if id == name || builtins[id] {
				continue
			}
			if _, ok := declared[id]; !ok {
				errs = append(errs, OrderError{
					Code:    ErrUndeclared,
					Block:   st.block,
					Line:    st.line,
					Name:    id,
					Message: "used before it is declared",
				})
			}
		}
		if name == "" {
			continue
		}
		if prev, ok := declared[name]; ok {
			errs = append(errs, OrderError{
				Code:    ErrRedeclared,
				Block:   st.block,
				Line:    st.line,
				Name:    name,
				Message: fmt.Sprintf("already declared on line %d", prev),
			})
			continue
		}
		declared[name] = st.line
		blockDecls[st.block] = append(blockDecls[st.block], name)
	}

	errs = append(errs, crossCheck(blockDecls[model.StageData.String()], p.Data.Keys(),
		ErrOrphanDecl, "declared as data but missing from the data card",
		ErrOrphanValue, "in the data card but not declared as data")...)

	params := make(map[string]bool)
	for _, name := range blockDecls[model.StageParameters.String()] {
		params[name] = true
	}
	for _, key := range p.Init.Keys() {
		if !params[key] {
			errs = append(errs, OrderError{
				Code:    ErrOrphanInit,
				Name:    key,
				Message: "in the init card but not declared as a parameter",
			})
		}
	}
	return errs
}

// statements splits program text into the statements of each block,
// with provenance comments removed.
func statements(text string) ([]statement, []OrderError) {
	var stmts []statement
	var errs []OrderError
	block := ""
	for i, line := range strings.Split(text, "\n") {
		if block == "" {
			if m := blockOpen.FindStringSubmatch(line); m != nil {
				block = m[1]
			}
			continue
		}
		if line == "}" {
			block = ""
			continue
		}
		if block == model.StageFunctions.String() {
			continue
		}
		if j := strings.Index(line, "//"); j >= 0 {
			line = line[:j]
		}
		if line = strings.TrimSpace(line); line != "" {
			stmts = append(stmts, statement{block: block, line: i + 1, text: line})
		}
	}
	if block != "" {
		errs = append(errs, OrderError{Code: ErrUnclosedBody, Name: block, Message: "block is not closed"})
	}
	return stmts, errs
}

// crossCheck reports names present in only one of decls and keys.
func crossCheck(decls, keys []string, declCode, declMsg, keyCode, keyMsg string) []OrderError {
	inKeys := make(map[string]bool, len(keys))
	for _, k := range keys {
		inKeys[k] = true
	}
	inDecls := make(map[string]bool, len(decls))
	var errs []OrderError
	for _, d := range decls {
		inDecls[d] = true
		if !inKeys[d] {
			errs = append(errs, OrderError{Code: declCode, Block: model.StageData.String(), Name: d, Message: declMsg})
		}
	}
	for _, k := range keys {
		if !inDecls[k] {
			errs = append(errs, OrderError{Code: keyCode, Name: k, Message: keyMsg})
		}
	}
	return errs
}
