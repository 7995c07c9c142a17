package types

// ResourceType classifies entries in the resource registry.
type ResourceType string

const (
	ResourceTypeDefault            ResourceType = "Default"
	ResourceTypeAltinnApp          ResourceType = "AltinnApp"
	ResourceTypeGenericAccess      ResourceType = "GenericAccessResource"
	ResourceTypeMaskinportenSchema ResourceType = "MaskinportenSchema"
)

// ServiceResource is a resource registry entry as returned by the
// resource directory.
type ServiceResource struct {
	Identifier   string       `json:"identifier"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	ResourceType ResourceType `json:"resourceType"`
	Delegable    bool         `json:"delegable"`
	Status       string       `json:"status,omitempty"`
}
