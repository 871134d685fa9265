package domain

import "encoding/json"

// PackageDir is the subdirectory of a release holding the extracted resources.
const PackageDir = "package"

// ExcludedResourceTypes are guide metadata, never served as resources.
var ExcludedResourceTypes = map[string]struct{}{
	"ImplementationGuide": {},
	"Bundle":              {},
}

// IsExcluded reports whether documents of the given type are skipped during indexing.
func IsExcluded(resourceType string) bool {
	_, ok := ExcludedResourceTypes[resourceType]
	return ok
}

// Document is a FHIR resource read from a release archive.
type Document struct {
	ResourceType string
	URL          string
	Raw          json.RawMessage // served to clients byte-for-byte
}
