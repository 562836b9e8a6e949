package interpolation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Placeholder grammar: ${ctx.<dotted.path>}. The dotted path is resolved
// against the interpolation root (the node representing "ctx").
var contextPlaceholderPattern = regexp.MustCompile(`\$\{ctx\.([^}]+)\}`)

const (
	pathSegmentSeparatorConstant = "."
	placeholderMarkerConstant    = "${ctx."
)

// ContainsPlaceholder reports whether the value carries at least one
// ${ctx.*} placeholder worth expanding.
func ContainsPlaceholder(value string) bool {
	return strings.Contains(value, placeholderMarkerConstant)
}

// Expand replaces every ${ctx.<path>} placeholder with the value found at
// the dotted path inside the interpolation root.
//
// An absent or nil branch expands to the empty string. This leniency is a
// documented contract of descriptor interpolation: path expansion tolerates
// missing context branches, while in-template rendering stays strict.
func Expand(value string, interpolationRoot any) string {
	return contextPlaceholderPattern.ReplaceAllStringFunc(value, func(placeholder string) string {
		dottedPath := contextPlaceholderPattern.FindStringSubmatch(placeholder)[1]
		resolvedValue, found := lookupDottedPath(interpolationRoot, dottedPath)
		if !found || resolvedValue == nil {
			return ""
		}
		return fmt.Sprintf("%v", resolvedValue)
	})
}

func lookupDottedPath(root any, dottedPath string) (any, bool) {
	currentValue := root
	for _, pathSegment := range strings.Split(dottedPath, pathSegmentSeparatorConstant) {
		nextValue, found := lookupSegment(currentValue, pathSegment)
		if !found {
			return nil, false
		}
		currentValue = nextValue
	}
	return currentValue, true
}

func lookupSegment(container any, segmentName string) (any, bool) {
	if container == nil {
		return nil, false
	}

	containerValue := reflect.ValueOf(container)
	for containerValue.Kind() == reflect.Pointer || containerValue.Kind() == reflect.Interface {
		if containerValue.IsNil() {
			return nil, false
		}
		containerValue = containerValue.Elem()
	}

	switch containerValue.Kind() {
	case reflect.Map:
		if containerValue.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		entryValue := containerValue.MapIndex(reflect.ValueOf(segmentName))
		if !entryValue.IsValid() {
			return nil, false
		}
		return entryValue.Interface(), true
	case reflect.Struct:
		containerType := containerValue.Type()
		for fieldIndex := 0; fieldIndex < containerType.NumField(); fieldIndex++ {
			fieldDefinition := containerType.Field(fieldIndex)
			if !fieldDefinition.IsExported() {
				continue
			}
			if strings.EqualFold(fieldDefinition.Name, strings.ReplaceAll(segmentName, "_", "")) {
				return containerValue.Field(fieldIndex).Interface(), true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}
