package jschallenge

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/firasghr/GoChallengeEngine/extractor"
)

// NativeName is the registry name of the native evaluator.
const NativeName = "native"

func init() { Register(NativeEvaluator{}) }

// NativeEvaluator solves the arithmetic challenge without a script engine.
// It ignores the rendered prelude and reads only the domain and the
// indirection table of the environment.
type NativeEvaluator struct{}

// Name implements Evaluator.
func (NativeEvaluator) Name() string { return NativeName }

// Eval implements Evaluator.
func (NativeEvaluator) Eval(ctx context.Context, env extractor.Environment, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return SolveArithmetic(script, env.Domain, env.KTable)
}

// SolveArithmetic parses script and evaluates it for domain.  kTable may be
// nil when the page has no indirection elements.
func SolveArithmetic(script, domain string, kTable map[int]string) (string, error) {
	prog, err := ParseProgram(script)
	if err != nil {
		return "", err
	}
	return prog.Eval(domain, kTable)
}

// ── Program ─────────────────────────────────────────────────────────────────

// Step is one "OBJ.KEY op= expr" statement, or a "k += expr" statement that
// selects the indirection table entry.
type Step struct {
	Op   byte
	Expr node
	// K marks a k-suffix statement; Op is always '+' for those.
	K bool
}

// Answer describes how the accumulator is turned into the submitted string.
type Answer struct {
	// Digits is the toFixed precision, or -1 for parseInt answers.
	Digits int
	// AddLength adds the domain length: inside toFixed for the
	// parenthesised form, after truncation or coercion otherwise.
	AddLength bool
	// Coerce applies unary plus to the toFixed result, dropping trailing
	// zeros, as in "+x.toFixed(10)".
	Coerce bool
}

// Program is a parsed challenge: an initial value, ordered steps applied left
// to right, and the answer format.
type Program struct {
	Object, Key string
	Init        node
	Steps       []Step
	Answer      Answer
}

var (
	reHeader   = regexp.MustCompile(`(?s)var\s[^;]*?,\s*(\w+)\s*=\s*\{\s*"(\w+)"\s*:\s*(.*?)\s*\};`)
	reBodyMark = regexp.MustCompile(`\(\s*'challenge-form'\s*\);`)
	reStep     = regexp.MustCompile(`(?s)^(\w+)\.(\w+)\s*([-+*/])=\s*(.+)$`)
	reKStep    = regexp.MustCompile(`(?s)^k\s*\+=\s*(.+)$`)
	reAnswer   = regexp.MustCompile(`(?s)^a\.value\s*=\s*(.+?)\s*;?\s*$`)

	reFixedParen = regexp.MustCompile(`^\(\s*\+\s*(\w+)\.(\w+)\s*(\+\s*t\.length\s*)?\)\s*\.toFixed\(\s*(\d+)\s*\)$`)
	reFixedUnary = regexp.MustCompile(`^\+\s*(\w+)\.(\w+)\.toFixed\(\s*(\d+)\s*\)(\s*\+\s*t\.length)?$`)
	reParseInt   = regexp.MustCompile(`^parseInt\(\s*(\w+)\.(\w+)\s*,\s*10\s*\)(\s*\+\s*t\.length)?$`)
)

const nativeBackend = "native"

// ParseProgram parses the challenge script into a Program.
func ParseProgram(script string) (*Program, error) {
	h := reHeader.FindStringSubmatchIndex(script)
	if h == nil {
		return nil, solveErrorf(nativeBackend, "challenge object declaration not found")
	}
	prog := &Program{
		Object: script[h[2]:h[3]],
		Key:    script[h[4]:h[5]],
	}
	init, err := parseExpression(script[h[6]:h[7]])
	if err != nil {
		return nil, &SolveError{Backend: nativeBackend, Reason: "initial value", Err: err}
	}
	prog.Init = init

	rest := script[h[1]:]
	m := reBodyMark.FindStringIndex(rest)
	if m == nil {
		return nil, solveErrorf(nativeBackend, "challenge-form lookup not found")
	}

	for i, stmt := range splitStatements(rest[m[1]:]) {
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "":
			continue

		case strings.HasPrefix(stmt, "a.value"):
			ans, err := parseAnswer(stmt, prog)
			if err != nil {
				return nil, err
			}
			prog.Answer = ans
			return prog, nil

		case reKStep.MatchString(stmt):
			expr, err := parseExpression(reKStep.FindStringSubmatch(stmt)[1])
			if err != nil {
				return nil, &SolveError{Backend: nativeBackend, Reason: fmt.Sprintf("statement %d", i), Err: err}
			}
			prog.Steps = append(prog.Steps, Step{Op: '+', Expr: expr, K: true})

		case reStep.MatchString(stmt):
			sm := reStep.FindStringSubmatch(stmt)
			if sm[1] != prog.Object || sm[2] != prog.Key {
				return nil, solveErrorf(nativeBackend, "statement %d assigns %s.%s, want %s.%s", i, sm[1], sm[2], prog.Object, prog.Key)
			}
			expr, err := parseExpression(sm[4])
			if err != nil {
				return nil, &SolveError{Backend: nativeBackend, Reason: fmt.Sprintf("statement %d", i), Err: err}
			}
			prog.Steps = append(prog.Steps, Step{Op: sm[3][0], Expr: expr})

		default:
			return nil, solveErrorf(nativeBackend, "unrecognised statement %d: %.40q", i, stmt)
		}
	}
	return nil, solveErrorf(nativeBackend, "answer assignment not found")
}

func parseAnswer(stmt string, prog *Program) (Answer, error) {
	m := reAnswer.FindStringSubmatch(stmt)
	if m == nil {
		return Answer{}, solveErrorf(nativeBackend, "malformed answer assignment")
	}
	rhs := m[1]

	check := func(obj, key string) error {
		if obj != prog.Object || key != prog.Key {
			return solveErrorf(nativeBackend, "answer reads %s.%s, want %s.%s", obj, key, prog.Object, prog.Key)
		}
		return nil
	}

	if sm := reFixedParen.FindStringSubmatch(rhs); sm != nil {
		digits, _ := strconv.Atoi(sm[4])
		return Answer{Digits: digits, AddLength: sm[3] != ""}, check(sm[1], sm[2])
	}
	if sm := reFixedUnary.FindStringSubmatch(rhs); sm != nil {
		digits, _ := strconv.Atoi(sm[3])
		return Answer{Digits: digits, AddLength: sm[4] != "", Coerce: true}, check(sm[1], sm[2])
	}
	if sm := reParseInt.FindStringSubmatch(rhs); sm != nil {
		return Answer{Digits: -1, AddLength: sm[3] != ""}, check(sm[1], sm[2])
	}
	return Answer{}, solveErrorf(nativeBackend, "unsupported answer expression %.40q", rhs)
}

// splitStatements splits src at semicolons outside brackets, braces and
// quoted strings.
func splitStatements(src string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '"', '\'':
			if j := skipString(src, i); j > 0 {
				i = j
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				out = append(out, src[start:i])
				start = i + 1
			}
		}
	}
	return append(out, src[start:])
}

// ── Evaluation ──────────────────────────────────────────────────────────────

// maxIndirection bounds nested k-table lookups.
const maxIndirection = 1

type evalContext struct {
	domain  string
	kTable  map[int]string
	kSuffix string
	depth   int
}

// Eval applies every step to the initial value and formats the answer.
func (p *Program) Eval(domain string, kTable map[int]string) (string, error) {
	ec := &evalContext{domain: domain, kTable: kTable}

	acc, err := ec.eval(p.Init)
	if err != nil {
		return "", &SolveError{Backend: nativeBackend, Reason: "initial value", Err: err}
	}
	for i, st := range p.Steps {
		v, err := ec.eval(st.Expr)
		if err != nil {
			return "", &SolveError{Backend: nativeBackend, Reason: fmt.Sprintf("step %d", i), Err: err}
		}
		if st.K {
			ec.kSuffix += v.toString()
			continue
		}
		acc = arith(st.Op, acc, v)
	}
	return p.Answer.format(acc.toNumber(), domain)
}

func (a Answer) format(x float64, domain string) (string, error) {
	length := float64(len(domain))
	if a.Digits < 0 {
		n := parseIntBase10(numberValue(x))
		if a.AddLength {
			n += length
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", solveErrorf(nativeBackend, "answer is not finite")
		}
		return formatNumber(n), nil
	}
	if a.Coerce {
		n := stringValue(strconv.FormatFloat(x, 'f', a.Digits, 64)).toNumber()
		if a.AddLength {
			n += length
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", solveErrorf(nativeBackend, "answer is not finite")
		}
		return formatNumber(n), nil
	}
	if a.AddLength {
		x += length
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "", solveErrorf(nativeBackend, "answer is not finite")
	}
	return strconv.FormatFloat(x, 'f', a.Digits, 64), nil
}

func (ec *evalContext) eval(n node) (value, error) {
	switch n := n.(type) {
	case arrayLit:
		if n.elem == nil {
			return value{kind: kindArray}, nil
		}
		v, err := ec.eval(n.elem)
		if err != nil {
			return value{}, err
		}
		return value{kind: kindArray, elems: []value{v}}, nil

	case unaryExpr:
		v, err := ec.eval(n.operand)
		if err != nil {
			return value{}, err
		}
		switch n.op {
		case '+':
			return numberValue(v.toNumber()), nil
		case '-':
			return numberValue(-v.toNumber()), nil
		}
		return boolValue(!v.toBool()), nil

	case binaryExpr:
		l, err := ec.eval(n.left)
		if err != nil {
			return value{}, err
		}
		r, err := ec.eval(n.right)
		if err != nil {
			return value{}, err
		}
		return arith(n.op, l, r), nil

	case callExpr:
		return ec.call(n)
	}
	return value{}, fmt.Errorf("unknown node %T", n)
}

// call resolves the two function literal shapes the challenge uses: a k-table
// lookup through document.getElementById(k), and a character code lookup into
// the domain built with eval("t.charCodeAt(" + p + ")").
func (ec *evalContext) call(c callExpr) (value, error) {
	switch {
	case strings.Contains(c.body, "getElementById("):
		if ec.depth >= maxIndirection {
			return value{}, fmt.Errorf("nested indirection lookup")
		}
		idx, err := strconv.Atoi(ec.kSuffix)
		if err != nil {
			return value{}, fmt.Errorf("indirection lookup before k was set")
		}
		src, ok := ec.kTable[idx]
		if !ok {
			return value{}, fmt.Errorf("indirection entry %d not found", idx)
		}
		expr, err := parseExpression(src)
		if err != nil {
			return value{}, fmt.Errorf("indirection entry %d: %w", idx, err)
		}
		ec.depth++
		v, err := ec.eval(expr)
		ec.depth--
		if err != nil {
			return value{}, fmt.Errorf("indirection entry %d: %w", idx, err)
		}
		return numberValue(v.toNumber()), nil

	case c.param != "" && strings.Contains(c.body, `"("+`+c.param+`+")"`):
		if c.arg == nil {
			return value{}, fmt.Errorf("character code lookup without argument")
		}
		v, err := ec.eval(c.arg)
		if err != nil {
			return value{}, err
		}
		f := v.toNumber()
		i := int(f)
		if float64(i) != f || i < 0 || i >= len(ec.domain) {
			return value{}, fmt.Errorf("character index %s outside domain %q", formatNumber(f), ec.domain)
		}
		return numberValue(float64(ec.domain[i])), nil
	}
	return value{}, fmt.Errorf("unsupported function literal %.40q", c.body)
}
