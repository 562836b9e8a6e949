package hostpath

import (
	"path"
	"strings"
)

const (
	hostSeparatorConstant       = ":"
	absolutePathPrefixConstant  = "/"
	mountPrefixConfigKeyConstant = "mount_prefix"
)

// HostPath is the canonical host-aware path value persisted in project
// documents and descriptor parameters.
//
// Stored form: "host:/abs/posix/path". The host segment is a key from the
// bundle's hosts configuration; the path segment is always absolute POSIX.
type HostPath struct {
	Host         string
	AbsolutePath string
}

// Parse accepts "host:/abs" and bare "/abs" spellings and returns the
// canonical HostPath. Bare paths are tagged with the supplied current host.
func Parse(rawValue string, currentHost string) HostPath {
	if strings.Contains(rawValue, hostSeparatorConstant) {
		hostSegment, pathSegment, _ := strings.Cut(rawValue, hostSeparatorConstant)
		return HostPath{Host: hostSegment, AbsolutePath: normalizeAbsolutePath(pathSegment)}
	}
	return HostPath{Host: currentHost, AbsolutePath: normalizeAbsolutePath(rawValue)}
}

// IsHostAware reports whether the raw value carries a host tag.
func IsHostAware(rawValue string) bool {
	hostSegment, pathSegment, found := strings.Cut(rawValue, hostSeparatorConstant)
	return found && len(hostSegment) > 0 && strings.HasPrefix(pathSegment, absolutePathPrefixConstant)
}

// String renders the persisted "host:/abs" form.
func (hostAwarePath HostPath) String() string {
	return hostAwarePath.Host + hostSeparatorConstant + hostAwarePath.AbsolutePath
}

// Materialize converts the host-aware value into a local filesystem path.
//
// Resolution order: the mount prefix configured for the host, then the
// supplied fallback prefix, then the bare absolute path.
func (hostAwarePath HostPath) Materialize(mountPrefixes map[string]string, fallbackPrefix string) string {
	mountPrefix := mountPrefixes[hostAwarePath.Host]
	if len(mountPrefix) == 0 {
		mountPrefix = fallbackPrefix
	}
	if len(mountPrefix) == 0 {
		return hostAwarePath.AbsolutePath
	}
	return path.Join(mountPrefix, strings.TrimPrefix(hostAwarePath.AbsolutePath, absolutePathPrefixConstant))
}

// MountPrefixes flattens a hosts configuration tree
// (host -> {mount_prefix: ...}) into a host -> prefix lookup table.
func MountPrefixes(hostsConfiguration map[string]any) map[string]string {
	prefixes := make(map[string]string, len(hostsConfiguration))
	for hostName, hostEntry := range hostsConfiguration {
		entryValues, isMapping := hostEntry.(map[string]any)
		if !isMapping {
			continue
		}
		prefixValue, isString := entryValues[mountPrefixConfigKeyConstant].(string)
		if isString && len(prefixValue) > 0 {
			prefixes[hostName] = prefixValue
		}
	}
	return prefixes
}

func normalizeAbsolutePath(rawPath string) string {
	cleaned := path.Clean(rawPath)
	if !strings.HasPrefix(cleaned, absolutePathPrefixConstant) {
		cleaned = absolutePathPrefixConstant + cleaned
	}
	return cleaned
}
