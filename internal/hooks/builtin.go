package hooks

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/bpm-tools/bpm/internal/execution"
)

const (
	builtinCwdFunctionNameConstant         = "cwd"
	builtinHostnameFunctionNameConstant    = "hostname"
	builtinTimestampFunctionNameConstant   = "timestamp"
	builtinRawBasenameFunctionNameConstant = "raw_basename"
	builtinIdleThreadsFunctionNameConstant = "idle_threads"
	pathArgumentNameConstant               = "path"
	percentageArgumentNameConstant         = "percentage"
	defaultIdlePercentageConstant          = 50.0
	missingPathArgumentMessageConstant     = "raw_basename requires a path argument"
	invalidPercentageTemplateConstant      = "invalid percentage argument: %v"
)

// BuiltinFunction is a hook or resolver compiled into the binary. It
// receives the execution context and the call arguments from the
// descriptor and returns a YAML-representable value.
type BuiltinFunction func(executionContext execution.Context, arguments map[string]any) (any, error)

func builtinFunctions() map[string]BuiltinFunction {
	return map[string]BuiltinFunction{
		builtinCwdFunctionNameConstant:         builtinCwd,
		builtinHostnameFunctionNameConstant:    builtinHostname,
		builtinTimestampFunctionNameConstant:   builtinTimestamp,
		builtinRawBasenameFunctionNameConstant: builtinRawBasename,
		builtinIdleThreadsFunctionNameConstant: builtinIdleThreads,
	}
}

func builtinCwd(executionContext execution.Context, _ map[string]any) (any, error) {
	return executionContext.Cwd, nil
}

func builtinHostname(executionContext execution.Context, _ map[string]any) (any, error) {
	return executionContext.Hostname(), nil
}

func builtinTimestamp(executionContext execution.Context, _ map[string]any) (any, error) {
	return executionContext.Now(), nil
}

// builtinRawBasename strips the directory and every extension from a path,
// so sample.fastq.gz becomes sample.
func builtinRawBasename(_ execution.Context, arguments map[string]any) (any, error) {
	rawPath, hasPath := arguments[pathArgumentNameConstant]
	if !hasPath || rawPath == nil {
		return nil, fmt.Errorf(missingPathArgumentMessageConstant)
	}

	baseName := filepath.Base(fmt.Sprintf("%v", rawPath))
	for {
		extension := filepath.Ext(baseName)
		if len(extension) == 0 || extension == baseName {
			break
		}
		baseName = strings.TrimSuffix(baseName, extension)
	}
	return baseName, nil
}

// builtinIdleThreads returns the number of CPU threads matching the given
// percentage of the machine's capacity, never less than one.
func builtinIdleThreads(_ execution.Context, arguments map[string]any) (any, error) {
	percentage := defaultIdlePercentageConstant
	if rawPercentage, hasPercentage := arguments[percentageArgumentNameConstant]; hasPercentage && rawPercentage != nil {
		switch typedPercentage := rawPercentage.(type) {
		case int:
			percentage = float64(typedPercentage)
		case int64:
			percentage = float64(typedPercentage)
		case float64:
			percentage = typedPercentage
		case string:
			parsedPercentage, parseError := strconv.ParseFloat(typedPercentage, 64)
			if parseError != nil {
				return nil, fmt.Errorf(invalidPercentageTemplateConstant, rawPercentage)
			}
			percentage = parsedPercentage
		default:
			return nil, fmt.Errorf(invalidPercentageTemplateConstant, rawPercentage)
		}
	}
	if percentage < 0 || percentage > 100 {
		return nil, fmt.Errorf(invalidPercentageTemplateConstant, percentage)
	}

	threadCount := int(float64(runtime.NumCPU()) * percentage / 100)
	if threadCount < 1 {
		threadCount = 1
	}
	return threadCount, nil
}
