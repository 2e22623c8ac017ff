/*
 * @module service/validation/ruleset
 * @description 声明式规则集：YAML 文档描述重命名表、排除规则与自定义规则指令
 * @architecture 指令 + 分派表 - 规则类型与参数模式显式声明，加载时校验
 * @stateFlow YAML -> RuleSet(校验参数) -> BuilderOptions / Registry
 * @rules 未知规则类型、缺少必填参数、未知参数或参数类型错误在加载时拒绝；规则名唯一
 * @dependencies gopkg.in/yaml.v3, github.com/spf13/cast
 * @refs builtin_rules.go, spec_builder.go
 */

package validation

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"redcap-outlier-service/service/models"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// RuleKind 规则类型
type RuleKind string

const (
	RuleChecksumCPF    RuleKind = "checksum_cpf"
	RuleChecksumCNS    RuleKind = "checksum_cns"
	RuleMissingValue   RuleKind = "missing_value"
	RuleCrossFormMatch RuleKind = "cross_form_match"
	RuleRequiredFields RuleKind = "required_fields"
)

type paramType int

const (
	paramString paramType = iota
	paramInt
	paramStringList
)

type paramDef struct {
	name     string
	typ      paramType
	required bool
}

// ruleEnv 构建规则时可用的运行期数据
type ruleEnv struct {
	spec      *ValidationSpec
	forms     map[string]*models.Form
	evaluator *BranchingEvaluator
}

type ruleKindDef struct {
	params   []paramDef
	register func(reg *Registry, name string, p ruleParams, env ruleEnv) error
}

var ruleKinds = map[RuleKind]ruleKindDef{
	RuleChecksumCPF: {
		params: []paramDef{{"form", paramString, true}, {"column", paramString, true}, {"reason", paramString, false}},
		register: func(reg *Registry, name string, p ruleParams, env ruleEnv) error {
			return reg.Register(name, ChecksumRule(env.forms, p.stringValue("form"), p.stringValue("column"), ChecksumCPF, p.stringValue("reason")))
		},
	},
	RuleChecksumCNS: {
		params: []paramDef{{"form", paramString, true}, {"column", paramString, true}, {"reason", paramString, false}},
		register: func(reg *Registry, name string, p ruleParams, env ruleEnv) error {
			return reg.Register(name, ChecksumRule(env.forms, p.stringValue("form"), p.stringValue("column"), ChecksumCNS, p.stringValue("reason")))
		},
	},
	RuleMissingValue: {
		params: []paramDef{{"form", paramString, true}, {"column", paramString, true}, {"missing_codes", paramStringList, false}, {"reason", paramString, false}},
		register: func(reg *Registry, name string, p ruleParams, env ruleEnv) error {
			return reg.Register(name, MissingValueRule(env.forms, p.stringValue("form"), p.stringValue("column"), p.stringList("missing_codes"), p.stringValue("reason")))
		},
	},
	RuleCrossFormMatch: {
		params: []paramDef{
			{"source_form", paramString, true},
			{"source_column", paramString, true},
			{"target_form", paramString, true},
			{"target_column", paramString, true},
			{"reason", paramString, true},
			{"separator", paramString, false},
			{"part", paramInt, false},
		},
		register: func(reg *Registry, name string, p ruleParams, env ruleEnv) error {
			part := 1
			if _, ok := p["part"]; ok {
				part = p.intValue("part")
			}
			return reg.Register(name, CrossFormMatchRule(env.forms, CrossFormMatch{
				SourceForm:   p.stringValue("source_form"),
				SourceColumn: p.stringValue("source_column"),
				Separator:    p.stringValue("separator"),
				Part:         part,
				TargetForm:   p.stringValue("target_form"),
				TargetColumn: p.stringValue("target_column"),
				Reason:       p.stringValue("reason"),
			}))
		},
	},
	RuleRequiredFields: {
		params: []paramDef{{"reason", paramString, false}},
		register: func(reg *Registry, name string, p ruleParams, env ruleEnv) error {
			return RegisterRequiredFields(reg, env.spec, env.forms, env.evaluator, p.stringValue("reason"))
		},
	},
}

// ruleParams 已通过模式校验的参数
type ruleParams map[string]interface{}

func (p ruleParams) stringValue(name string) string {
	return cast.ToString(p[name])
}

func (p ruleParams) intValue(name string) int {
	return cast.ToInt(p[name])
}

func (p ruleParams) stringList(name string) []string {
	return cast.ToStringSlice(p[name])
}

// RuleInstruction 单条规则指令
type RuleInstruction struct {
	Name   string                 `yaml:"name" json:"name"`
	Kind   RuleKind               `yaml:"kind" json:"kind"`
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// RuleSet 规则集文档
type RuleSet struct {
	Version          string            `yaml:"version" json:"version"`
	RequiredMarker   string            `yaml:"required_marker,omitempty" json:"required_marker,omitempty"`
	ExcludePatterns  []string          `yaml:"exclude_patterns,omitempty" json:"exclude_patterns,omitempty"`
	Renames          RenameTable       `yaml:"renames,omitempty" json:"renames,omitempty"`
	FilterToComplete *bool             `yaml:"filter_to_complete,omitempty" json:"filter_to_complete,omitempty"`
	Rules            []RuleInstruction `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// DefaultRuleSet 未配置规则集时使用：只检查必填字段
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version: "default",
		Rules: []RuleInstruction{
			{Name: "required_fields", Kind: RuleRequiredFields},
		},
	}
}

// LoadRuleSet 从文件加载规则集
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取规则集文件失败: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet 解析并校验规则集
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("解析规则集失败: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Validate 校验规则指令的类型与参数
func (rs *RuleSet) Validate() error {
	names := make(map[string]bool)
	for i, instruction := range rs.Rules {
		if strings.TrimSpace(instruction.Name) == "" {
			return fmt.Errorf("第 %d 条规则缺少名称", i+1)
		}
		if names[instruction.Name] {
			return fmt.Errorf("规则名 %s 重复", instruction.Name)
		}
		names[instruction.Name] = true

		def, ok := ruleKinds[instruction.Kind]
		if !ok {
			return fmt.Errorf("规则 %s 的类型 %q 不受支持，可用类型: %s", instruction.Name, instruction.Kind, strings.Join(RuleKinds(), ", "))
		}
		if err := checkParams(def.params, instruction.Params); err != nil {
			return fmt.Errorf("规则 %s 参数错误: %w", instruction.Name, err)
		}
	}
	return nil
}

func checkParams(defs []paramDef, params map[string]interface{}) error {
	declared := make(map[string]bool, len(defs))
	for _, def := range defs {
		declared[def.name] = true
		value, ok := params[def.name]
		if !ok || value == nil {
			if def.required {
				return fmt.Errorf("缺少参数 %s", def.name)
			}
			continue
		}

		var err error
		switch def.typ {
		case paramString:
			var s string
			s, err = cast.ToStringE(value)
			if err == nil && def.required && strings.TrimSpace(s) == "" {
				err = fmt.Errorf("不能为空")
			}
		case paramInt:
			_, err = cast.ToIntE(value)
		case paramStringList:
			_, err = cast.ToStringSliceE(value)
		}
		if err != nil {
			return fmt.Errorf("参数 %s 类型错误: %v", def.name, err)
		}
	}

	for name := range params {
		if !declared[name] {
			return fmt.Errorf("未知参数 %s", name)
		}
	}
	return nil
}

// RuleKinds 返回支持的规则类型（排序）
func RuleKinds() []string {
	kinds := make([]string, 0, len(ruleKinds))
	for kind := range ruleKinds {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	return kinds
}

// BuilderOptions 规则集对应的规格构建选项
func (rs *RuleSet) BuilderOptions() []BuilderOption {
	var opts []BuilderOption
	if rs.RequiredMarker != "" {
		opts = append(opts, WithRequiredMarker(rs.RequiredMarker))
	}
	if len(rs.ExcludePatterns) > 0 {
		opts = append(opts, WithExcludePatterns(rs.ExcludePatterns...))
	}
	if !rs.Renames.IsEmpty() || rs.Renames.Version != "" {
		opts = append(opts, WithRenameTable(rs.Renames))
	}
	return opts
}

// FilterToCompleteOr 规则集未声明时使用 fallback
func (rs *RuleSet) FilterToCompleteOr(fallback bool) bool {
	if rs.FilterToComplete == nil {
		return fallback
	}
	return *rs.FilterToComplete
}

// BuildRegistry 按指令顺序构建自定义规则注册表
func (rs *RuleSet) BuildRegistry(spec *ValidationSpec, forms map[string]*models.Form, evaluator *BranchingEvaluator) (*Registry, error) {
	registry := NewRegistry()
	env := ruleEnv{spec: spec, forms: forms, evaluator: evaluator}

	for _, instruction := range rs.Rules {
		def, ok := ruleKinds[instruction.Kind]
		if !ok {
			return nil, fmt.Errorf("规则 %s 的类型 %q 不受支持", instruction.Name, instruction.Kind)
		}
		if err := def.register(registry, instruction.Name, ruleParams(instruction.Params), env); err != nil {
			return nil, fmt.Errorf("注册规则 %s 失败: %w", instruction.Name, err)
		}
	}
	return registry, nil
}
