// =============================================================================
// 📐 路由规则条件编译
// =============================================================================
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/teamflow/types"
)

// CompileCondition 把声明式条件表达式编译为任务谓词。
//
// 支持的表达式：
//
//	contains('text')        任务描述包含 text（不区分大小写）
//	priority >= N           任务优先级不低于 N
//	priority <= N           任务优先级不高于 N
//	context.key == 'value'  任务上下文 key 等于 value
//
// 表达式不可解析时返回 INVALID_CONFIG 错误。
func CompileCondition(expr string) (func(*types.Task) bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "empty rule condition")
	}

	if strings.HasPrefix(expr, "contains(") && strings.HasSuffix(expr, ")") {
		inner := expr[len("contains(") : len(expr)-1]
		text, ok := unquote(inner)
		if !ok {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("contains argument must be single-quoted: %s", expr))
		}
		needle := strings.ToLower(text)
		return func(task *types.Task) bool {
			return strings.Contains(strings.ToLower(task.Description), needle)
		}, nil
	}

	if rest, ok := strings.CutPrefix(expr, "priority"); ok {
		rest = strings.TrimSpace(rest)
		op := ""
		switch {
		case strings.HasPrefix(rest, ">="):
			op = ">="
		case strings.HasPrefix(rest, "<="):
			op = "<="
		default:
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("priority condition supports only >= and <=: %s", expr))
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[2:]))
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("priority condition needs an integer bound: %s", expr)).WithCause(err)
		}
		if op == ">=" {
			return func(task *types.Task) bool { return task.Priority >= n }, nil
		}
		return func(task *types.Task) bool { return task.Priority <= n }, nil
	}

	if rest, ok := strings.CutPrefix(expr, "context."); ok {
		key, rhs, found := strings.Cut(rest, "==")
		if !found {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("context condition supports only ==: %s", expr))
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("context condition needs a key: %s", expr))
		}
		want, ok := unquote(strings.TrimSpace(rhs))
		if !ok {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("context value must be single-quoted: %s", expr))
		}
		return func(task *types.Task) bool {
			got, exists := task.Context[key]
			if !exists {
				return false
			}
			s, isString := got.(string)
			return isString && s == want
		}, nil
	}

	return nil, types.NewError(types.ErrInvalidConfig,
		fmt.Sprintf("unsupported rule condition: %s", expr))
}

// unquote 去掉成对的单引号
func unquote(s string) (string, bool) {
	if len(s) < 2 || !strings.HasPrefix(s, "'") || !strings.HasSuffix(s, "'") {
		return "", false
	}
	return s[1 : len(s)-1], true
}
