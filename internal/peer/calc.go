package peer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/signalsfoundry/simvar-client/model"
	"github.com/signalsfoundry/simvar-client/timectrl"
)

// ErrCalcSyntax reports calculator code that cannot be evaluated.
var ErrCalcSyntax = errors.New("calculator syntax error")

// Calculator evaluates the reverse-polish calculator code accepted by Exec
// commands and calculated data requests.
//
// Supported tokens are number literals, quoted strings, variable reads such as
// (A:PLANE ALTITUDE,feet), (L:name) and (E:SIMULATION TIME,seconds), writes
// (>L:name) and (>A:name,unit), key events (>K:NAME) and the operators
// + - * / % neg abs min max flr ceil near ! == != < > <= >= && || dup.
type Calculator struct {
	store *Store
	clock timectrl.SimClock
	epoch time.Time
}

// NewCalculator evaluates against store; simulation time is measured from epoch.
func NewCalculator(store *Store, clock timectrl.SimClock, epoch time.Time) *Calculator {
	return &Calculator{store: store, clock: clock, epoch: epoch}
}

type operand struct {
	num   float64
	str   string
	isStr bool
}

// Eval runs code and converts the top of the stack to resultType. An empty
// stack yields a zero Value, which is how side-effect-only code ends.
func (c *Calculator) Eval(code string, resultType model.CalcResultType) (Value, error) {
	tokens, err := tokenize(code)
	if err != nil {
		return Value{}, err
	}
	var stack []operand
	pop := func(tok string) (operand, error) {
		if len(stack) == 0 {
			return operand{}, fmt.Errorf("%w: %q needs an operand", ErrCalcSyntax, tok)
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, nil
	}
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "'"):
			stack = append(stack, operand{str: strings.Trim(tok, "'"), isStr: true})
		case strings.HasPrefix(tok, "("):
			v, push, err := c.variable(tok, pop)
			if err != nil {
				return Value{}, err
			}
			if push {
				stack = append(stack, v)
			}
		default:
			if n, err := strconv.ParseFloat(tok, 64); err == nil {
				stack = append(stack, operand{num: n})
				continue
			}
			if tok == "dup" {
				if len(stack) == 0 {
					return Value{}, fmt.Errorf("%w: dup on empty stack", ErrCalcSyntax)
				}
				stack = append(stack, stack[len(stack)-1])
				continue
			}
			if fn, ok := unaryOps[tok]; ok {
				a, err := pop(tok)
				if err != nil {
					return Value{}, err
				}
				stack = append(stack, operand{num: fn(a.num)})
				continue
			}
			fn, ok := binaryOps[tok]
			if !ok {
				return Value{}, fmt.Errorf("%w: unknown token %q", ErrCalcSyntax, tok)
			}
			b, err := pop(tok)
			if err != nil {
				return Value{}, err
			}
			a, err := pop(tok)
			if err != nil {
				return Value{}, err
			}
			if tok == "+" && (a.isStr || b.isStr) {
				stack = append(stack, operand{str: a.text() + b.text(), isStr: true})
				continue
			}
			stack = append(stack, operand{num: fn(a.num, b.num)})
		}
	}
	if len(stack) == 0 {
		return Value{}, nil
	}
	return convertResult(stack[len(stack)-1], resultType), nil
}

func (o operand) text() string {
	if o.isStr {
		return o.str
	}
	return strconv.FormatFloat(o.num, 'f', -1, 64)
}

func convertResult(top operand, resultType model.CalcResultType) Value {
	switch resultType {
	case model.CalcString:
		return Value{Str: top.text(), IsString: true, Num: top.num}
	case model.CalcFormatted:
		if top.isStr {
			return Value{Str: top.str, IsString: true}
		}
		return Value{Str: strconv.FormatFloat(top.num, 'f', 2, 64), IsString: true, Num: top.num}
	case model.CalcInteger:
		if top.isStr {
			n, _ := strconv.ParseFloat(top.str, 64)
			return Value{Num: math.Trunc(n)}
		}
		return Value{Num: math.Trunc(top.num)}
	default:
		if top.isStr {
			n, _ := strconv.ParseFloat(top.str, 64)
			return Value{Num: n}
		}
		return Value{Num: top.num}
	}
}

// variable handles a parenthesised token. Reads push a value; writes and key
// events consume one.
func (c *Calculator) variable(tok string, pop func(string) (operand, error)) (operand, bool, error) {
	body := strings.TrimSpace(tok[1 : len(tok)-1])
	write := strings.HasPrefix(body, ">")
	body = strings.TrimPrefix(body, ">")
	prefix, ref, ok := strings.Cut(body, ":")
	if !ok || len(prefix) != 1 {
		return operand{}, false, fmt.Errorf("%w: bad variable %q", ErrCalcSyntax, tok)
	}
	name, _, _ := strings.Cut(ref, ",")
	name = strings.TrimSpace(name)
	var index uint8
	if base, idx, found := strings.Cut(name, ":"); found {
		n, err := strconv.ParseUint(idx, 10, 8)
		if err != nil {
			return operand{}, false, fmt.Errorf("%w: bad index in %q", ErrCalcSyntax, tok)
		}
		name, index = base, uint8(n)
	}

	switch prefix = strings.ToUpper(prefix); {
	case write && prefix == "L":
		v, err := pop(tok)
		if err != nil {
			return operand{}, false, err
		}
		_, err = c.store.SetLocal(name, v.num, true)
		return operand{}, false, err
	case write && prefix == "A":
		v, err := pop(tok)
		if err != nil {
			return operand{}, false, err
		}
		return operand{}, false, c.store.SetSimVar(name, index, v.num)
	case write && prefix == "K":
		if _, err := pop(tok); err != nil {
			return operand{}, false, err
		}
		id, err := c.store.Lookup(model.LookupKeyEventID, name)
		if err != nil {
			return operand{}, false, err
		}
		return operand{}, false, c.store.TriggerKey(id)
	case write:
		return operand{}, false, fmt.Errorf("%w: cannot write %s variables", ErrUnsupported, prefix)
	case prefix == "L":
		return operand{num: c.store.GetOrCreateLocal(name, 0)}, true, nil
	case prefix == "A":
		v, err := c.store.SimVar(name, index)
		if err != nil {
			return operand{}, false, err
		}
		return operand{num: v.Num, str: v.Str, isStr: v.IsString}, true, nil
	case prefix == "E" && strings.EqualFold(name, "SIMULATION TIME"):
		return operand{num: c.clock.Now().Sub(c.epoch).Seconds()}, true, nil
	default:
		return operand{}, false, fmt.Errorf("%w: %s:%s", ErrUnknownVariable, prefix, name)
	}
}

func tokenize(code string) ([]string, error) {
	var tokens []string
	rs := []rune(code)
	for i := 0; i < len(rs); {
		switch r := rs[i]; {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == '\'':
			end := ')'
			if r == '\'' {
				end = '\''
			}
			j := i + 1
			for j < len(rs) && rs[j] != end {
				j++
			}
			if j == len(rs) {
				return nil, fmt.Errorf("%w: unterminated %q at %d", ErrCalcSyntax, r, i)
			}
			tokens = append(tokens, string(rs[i:j+1]))
			i = j + 1
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) {
				j++
			}
			tokens = append(tokens, string(rs[i:j]))
			i = j
		}
	}
	return tokens, nil
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var unaryOps = map[string]func(float64) float64{
	"neg":  func(a float64) float64 { return -a },
	"abs":  math.Abs,
	"flr":  math.Floor,
	"ceil": math.Ceil,
	"near": math.Round,
	"!":    func(a float64) float64 { return boolf(a == 0) },
	"not":  func(a float64) float64 { return boolf(a == 0) },
}

var binaryOps = map[string]func(a, b float64) float64{
	"+":   func(a, b float64) float64 { return a + b },
	"-":   func(a, b float64) float64 { return a - b },
	"*":   func(a, b float64) float64 { return a * b },
	"/":   func(a, b float64) float64 { return a / b },
	"%":   math.Mod,
	"min": math.Min,
	"max": math.Max,
	"==":  func(a, b float64) float64 { return boolf(a == b) },
	"!=":  func(a, b float64) float64 { return boolf(a != b) },
	"<":   func(a, b float64) float64 { return boolf(a < b) },
	">":   func(a, b float64) float64 { return boolf(a > b) },
	"<=":  func(a, b float64) float64 { return boolf(a <= b) },
	">=":  func(a, b float64) float64 { return boolf(a >= b) },
	"&&":  func(a, b float64) float64 { return boolf(a != 0 && b != 0) },
	"||":  func(a, b float64) float64 { return boolf(a != 0 || b != 0) },
	"and": func(a, b float64) float64 { return boolf(a != 0 && b != 0) },
	"or":  func(a, b float64) float64 { return boolf(a != 0 || b != 0) },
}
