package mosaic

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Context is the mapping template expansion sees: identifier to value. It's
// built fresh for every expansion by merging the supplied props over a
// snapshot of the state store, so expansion never observes hidden mutation.
type Context map[string]any

// MergeContexts flattens two Contexts into one, with the values in over
// winning over the values in base when they share a key.
func MergeContexts(base, over Context) Context {
	res := make(Context, len(base)+len(over))
	for key, value := range base {
		res[key] = value
	}
	for key, value := range over {
		res[key] = value
	}
	return res
}

// Template block delimiters. Conditional blocks look like
//
//	[[#if user.loggedIn]] ... [[/if]]
//
// and loop blocks look like
//
//	[[#each items as item]] ... [[/each]]
//
// with {{identifier}} placeholders substituted last.
const (
	ifOpen    = "[[#if "
	ifClose   = "[[/if]]"
	eachOpen  = "[[#each "
	eachClose = "[[/each]]"
	headerEnd = "]]"
	eachAs    = " as "
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_$][A-Za-z0-9_$]*(?:\.[A-Za-z0-9_$]+)*)\s*\}\}`)

// Engine expands conditional blocks, loop blocks, and placeholders in a
// template string against a Context. The zero value is not usable; get one
// from NewEngine.
type Engine struct {
	exprs *evaluator
}

// NewEngine returns an Engine ready to expand templates. Compiled expressions
// are cached on the Engine, so reusing one Engine across loads is cheaper
// than making new ones.
func NewEngine() *Engine {
	return &Engine{
		exprs: newEvaluator(),
	}
}

// Expand runs template through the three expansion passes, in order:
// conditional blocks, then loop blocks, then placeholder substitution. Each
// pass operates on the output of the one before it. Expand never fails; a
// conditional whose expression can't be evaluated drops its body, a loop
// whose expression can't be evaluated (or isn't a sequence) expands to
// nothing, and unmatched placeholders stay in the output as literal text. A
// template with none of the recognized syntax comes back unchanged.
func (e *Engine) Expand(ctx context.Context, template string, tctx Context) string {
	out := e.conditionalPass(ctx, template, tctx)
	out = e.loopPass(ctx, out, tctx)
	return e.placeholderPass(out, tctx)
}

// conditionalPass expands [[#if]] blocks. Blocks inside loop bodies are left
// untouched here; they expand when the loop pass re-enters Expand for each
// iteration, with the loop variable in scope.
func (e *Engine) conditionalPass(ctx context.Context, template string, tctx Context) string {
	var out strings.Builder
	rest := template
	for {
		ifIdx := strings.Index(rest, ifOpen)
		if ifIdx == -1 {
			out.WriteString(rest)
			break
		}
		if eachIdx := strings.Index(rest, eachOpen); eachIdx != -1 && eachIdx < ifIdx {
			// skip past the loop block wholesale
			bodyStart, _, closeIdx := splitBlock(rest[eachIdx:], eachOpen, eachClose)
			if closeIdx == -1 {
				out.WriteString(rest)
				break
			}
			end := eachIdx + bodyStart + closeIdx + len(eachClose)
			out.WriteString(rest[:end])
			rest = rest[end:]
			continue
		}
		bodyStart, header, closeIdx := splitBlock(rest[ifIdx:], ifOpen, ifClose)
		if closeIdx == -1 {
			// unterminated block, leave it literal
			out.WriteString(rest)
			break
		}
		body := rest[ifIdx+bodyStart : ifIdx+bodyStart+closeIdx]
		out.WriteString(rest[:ifIdx])
		if e.exprs.evalBool(ctx, header, tctx) {
			out.WriteString(e.conditionalPass(ctx, body, tctx))
		}
		rest = rest[ifIdx+bodyStart+closeIdx+len(ifClose):]
	}
	return out.String()
}

// loopPass expands [[#each]] blocks, re-entering Expand once per element so
// nested blocks inside the body see the augmented per-iteration context.
func (e *Engine) loopPass(ctx context.Context, template string, tctx Context) string {
	var out strings.Builder
	rest := template
	for {
		idx := strings.Index(rest, eachOpen)
		if idx == -1 {
			out.WriteString(rest)
			break
		}
		bodyStart, header, closeIdx := splitBlock(rest[idx:], eachOpen, eachClose)
		if closeIdx == -1 {
			out.WriteString(rest)
			break
		}
		expression, name, ok := splitEachHeader(header)
		if !ok {
			logger(ctx).WarnContext(ctx, "malformed loop header, expanding to nothing", "header", header)
		}
		body := rest[idx+bodyStart : idx+bodyStart+closeIdx]
		out.WriteString(rest[:idx])
		if ok {
			for pos, item := range e.exprs.evalSequence(ctx, expression, tctx) {
				iterCtx := MergeContexts(tctx, Context{
					name:    item,
					"index": pos,
					"$item": item,
				})
				out.WriteString(e.Expand(ctx, body, iterCtx))
			}
		}
		rest = rest[idx+bodyStart+closeIdx+len(eachClose):]
	}
	return out.String()
}

// placeholderPass substitutes {{identifier}} placeholders whose identifier
// resolves in the context, leaving the rest literal.
func (e *Engine) placeholderPass(template string, tctx Context) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		ident := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := lookupPath(tctx, ident)
		if !ok {
			return match
		}
		return Stringify(value)
	})
}

// splitBlock parses a block that starts at the beginning of s. It returns the
// offset of the block body within s, the trimmed header text between the
// opener and its closing "]]", and the offset of the matching close token
// relative to the body start. closeIdx is -1 when the block is unterminated.
func splitBlock(s, open, closeToken string) (bodyStart int, header string, closeIdx int) {
	headerStart := len(open)
	term := strings.Index(s[headerStart:], headerEnd)
	if term == -1 {
		return 0, "", -1
	}
	header = strings.TrimSpace(s[headerStart : headerStart+term])
	bodyStart = headerStart + term + len(headerEnd)
	depth := 1
	pos := bodyStart
	for {
		openIdx := strings.Index(s[pos:], open)
		closePos := strings.Index(s[pos:], closeToken)
		if closePos == -1 {
			return bodyStart, header, -1
		}
		if openIdx != -1 && openIdx < closePos {
			depth++
			pos += openIdx + len(open)
			continue
		}
		depth--
		if depth == 0 {
			return bodyStart, header, pos + closePos - bodyStart
		}
		pos += closePos + len(closeToken)
	}
}

// splitEachHeader splits "expr as name" into its two halves.
func splitEachHeader(header string) (expression, name string, ok bool) {
	idx := strings.LastIndex(header, eachAs)
	if idx == -1 {
		return "", "", false
	}
	expression = strings.TrimSpace(header[:idx])
	name = strings.TrimSpace(header[idx+len(eachAs):])
	if expression == "" || name == "" {
		return "", "", false
	}
	return expression, name, true
}

// lookupPath resolves a possibly-dotted identifier through the context,
// descending into nested maps and struct fields.
func lookupPath(tctx Context, path string) (any, bool) {
	segments := strings.Split(path, ".")
	current, ok := tctx[segments[0]]
	if !ok {
		return nil, false
	}
	for _, segment := range segments[1:] {
		switch typed := current.(type) {
		case Context:
			current, ok = typed[segment]
		case map[string]any:
			current, ok = typed[segment]
		case map[string]string:
			current, ok = typed[segment]
		default:
			current, ok = lookupReflect(current, segment)
		}
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func lookupReflect(value any, segment string) (any, bool) {
	reflected := reflect.ValueOf(value)
	for reflected.Kind() == reflect.Ptr {
		if reflected.IsNil() {
			return nil, false
		}
		reflected = reflected.Elem()
	}
	switch reflected.Kind() {
	case reflect.Map:
		if reflected.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		entry := reflected.MapIndex(reflect.ValueOf(segment))
		if !entry.IsValid() {
			return nil, false
		}
		return entry.Interface(), true
	case reflect.Struct:
		field := reflected.FieldByName(segment)
		if !field.IsValid() || !field.CanInterface() {
			return nil, false
		}
		return field.Interface(), true
	default:
		return nil, false
	}
}

// Stringify renders a context value into the string form substitution uses.
// nil becomes the empty string, numbers get trimmed forms, and compound
// values serialize to their canonical JSON text.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return typed.String()
	}
	serialized, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(serialized)
}
