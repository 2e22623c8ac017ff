/*
 * @module service/validation/branching
 * @description REDCap 分支逻辑求值器：将分支逻辑翻译为 Go 布尔表达式，由 Yaegi 编译执行
 * @architecture 解释器模式 - 翻译 + Yaegi 编译 + 按哈希缓存
 * @stateFlow 分支逻辑 -> 词法分析 -> 递归下降翻译 -> Yaegi 编译 -> func(map[string]string) bool
 * @rules 支持字段引用、复选框选项引用、字符串/数字字面量、比较运算符、and/or 与括号；
 *        函数调用等其他语法返回错误，由调用方决定如何处理
 * @dependencies github.com/traefik/yaegi, github.com/spf13/cast
 * @refs builtin_rules.go
 */

package validation

import (
	"crypto/sha1"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"redcap-outlier-service/service/models"

	"github.com/spf13/cast"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// BranchingEvaluator 分支逻辑求值器，可并发使用
type BranchingEvaluator struct {
	mu    sync.RWMutex
	cache map[string]func(map[string]string) bool
}

// NewBranchingEvaluator 创建分支逻辑求值器
func NewBranchingEvaluator() *BranchingEvaluator {
	return &BranchingEvaluator{
		cache: make(map[string]func(map[string]string) bool),
	}
}

// Evaluate 对一行取值求分支逻辑，空逻辑恒为真
func (e *BranchingEvaluator) Evaluate(logic string, values map[string]string) (bool, error) {
	if strings.TrimSpace(logic) == "" {
		return true, nil
	}

	expr, err := TranslateBranchingLogic(logic)
	if err != nil {
		return false, err
	}

	hash := fmt.Sprintf("%x", sha1.Sum([]byte(expr)))

	e.mu.RLock()
	fn, ok := e.cache[hash]
	e.mu.RUnlock()

	if !ok {
		fn, err = compileBranching(expr)
		if err != nil {
			return false, fmt.Errorf("分支逻辑编译失败: %w", err)
		}
		e.mu.Lock()
		e.cache[hash] = fn
		e.mu.Unlock()
	}

	return fn(values), nil
}

// CacheSize 已编译的表达式数量
func (e *BranchingEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// RowValues 将一行数据转换为分支逻辑使用的字符串取值
func RowValues(row map[string]interface{}) map[string]string {
	values := make(map[string]string, len(row))
	for key, value := range row {
		if models.IsNull(value) {
			values[key] = ""
			continue
		}
		values[key] = strings.TrimSpace(cast.ToString(value))
	}
	return values
}

const branchingProgram = `
package main

import "strconv"

func cmp(a string, op string, b string) bool {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch op {
		case "=":
			return x == y
		case "<>":
			return x != y
		case "<":
			return x < y
		case "<=":
			return x <= y
		case ">":
			return x > y
		case ">=":
			return x >= y
		}
		return false
	}
	switch op {
	case "=":
		return a == b
	case "<>":
		return a != b
	}
	if a == "" || b == "" {
		return false
	}
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func Eval(v map[string]string) bool {
	return %s
}
`

func compileBranching(expr string) (func(map[string]string) bool, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	if _, err := i.Eval(fmt.Sprintf(branchingProgram, expr)); err != nil {
		return nil, err
	}

	v, err := i.Eval("Eval")
	if err != nil {
		return nil, fmt.Errorf("缺少 Eval 函数: %w", err)
	}

	fn, ok := v.Interface().(func(map[string]string) bool)
	if !ok {
		return nil, fmt.Errorf("Eval 函数签名必须是 func(map[string]string) bool")
	}
	return fn, nil
}

type tokenKind int

const (
	tokField tokenKind = iota
	tokString
	tokNumber
	tokOperator
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	value string
}

// TranslateBranchingLogic 将 REDCap 分支逻辑翻译为 Go 布尔表达式
func TranslateBranchingLogic(logic string) (string, error) {
	tokens, err := tokenize(logic)
	if err != nil {
		return "", err
	}
	p := &branchingParser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return "", err
	}
	if p.pos != len(p.tokens) {
		return "", fmt.Errorf("分支逻辑在位置 %d 存在多余内容: %q", p.pos, p.tokens[p.pos].value)
	}
	return expr, nil
}

func tokenize(logic string) ([]token, error) {
	var tokens []token
	runes := []rune(logic)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '[':
			end := indexRune(runes, i+1, ']')
			if end < 0 {
				return nil, fmt.Errorf("字段引用未闭合")
			}
			name := fieldVariable(string(runes[i+1 : end]))
			// [event][field] 形式只保留最后一个引用
			if n := len(tokens); n > 0 && tokens[n-1].kind == tokField {
				tokens[n-1].value = name
			} else {
				tokens = append(tokens, token{kind: tokField, value: name})
			}
			i = end + 1
		case r == '\'' || r == '"':
			end := indexRune(runes, i+1, r)
			if end < 0 {
				return nil, fmt.Errorf("字符串未闭合")
			}
			tokens = append(tokens, token{kind: tokString, value: string(runes[i+1 : end])})
			i = end + 1
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, value: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, value: ")"})
			i++
		case strings.ContainsRune("=<>!", r):
			op := string(r)
			if i+1 < len(runes) && strings.ContainsRune("=>", runes[i+1]) {
				op += string(runes[i+1])
			}
			i += len([]rune(op))
			switch op {
			case "=", "<", ">", "<=", ">=", "<>":
			case "==":
				op = "="
			case "!=":
				op = "<>"
			default:
				return nil, fmt.Errorf("不支持的运算符: %s", op)
			}
			tokens = append(tokens, token{kind: tokOperator, value: op})
		case unicode.IsDigit(r) || r == '-' || r == '.':
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			text := string(runes[i:j])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("无效的数字: %s", text)
			}
			tokens = append(tokens, token{kind: tokNumber, value: text})
			i = j
		case unicode.IsLetter(r):
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := strings.ToLower(string(runes[i:j]))
			switch word {
			case "and":
				tokens = append(tokens, token{kind: tokAnd, value: word})
			case "or":
				tokens = append(tokens, token{kind: tokOr, value: word})
			default:
				return nil, fmt.Errorf("不支持的语法: %s", word)
			}
			i = j
		default:
			return nil, fmt.Errorf("无法识别的字符: %q", r)
		}
	}
	return tokens, nil
}

func indexRune(runes []rune, from int, target rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

// fieldVariable 复选框引用 field(code) 对应导出列 field___code
func fieldVariable(ref string) string {
	ref = strings.TrimSpace(ref)
	open := strings.Index(ref, "(")
	if open < 0 || !strings.HasSuffix(ref, ")") {
		return ref
	}
	code := strings.ReplaceAll(ref[open+1:len(ref)-1], "-", "_")
	return ref[:open] + models.DefaultCheckboxSplitter + code
}

type branchingParser struct {
	tokens []token
	pos    int
}

func (p *branchingParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *branchingParser) parseOr() (string, error) {
	left, err := p.parseAnd()
	if err != nil {
		return "", err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return "", err
		}
		left = left + " || " + right
	}
}

func (p *branchingParser) parseAnd() (string, error) {
	left, err := p.parseFactor()
	if err != nil {
		return "", err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return "", err
		}
		left = left + " && " + right
	}
}

func (p *branchingParser) parseFactor() (string, error) {
	tok, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("分支逻辑不完整")
	}

	if tok.kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return "", err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return "", fmt.Errorf("括号未闭合")
		}
		p.pos++
		return "(" + inner + ")", nil
	}

	left, err := p.parseAtom()
	if err != nil {
		return "", err
	}
	op, ok := p.peek()
	if !ok || op.kind != tokOperator {
		return "", fmt.Errorf("字段 %s 后缺少比较运算符", tok.value)
	}
	p.pos++
	right, err := p.parseAtom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cmp(%s, %s, %s)", left, strconv.Quote(op.value), right), nil
}

func (p *branchingParser) parseAtom() (string, error) {
	tok, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("分支逻辑不完整")
	}
	p.pos++
	switch tok.kind {
	case tokField:
		return fmt.Sprintf("v[%s]", strconv.Quote(tok.value)), nil
	case tokString, tokNumber:
		return strconv.Quote(tok.value), nil
	default:
		return "", fmt.Errorf("位置 %d 需要字段或常量，实际为 %q", p.pos-1, tok.value)
	}
}
