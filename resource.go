package tracekit

// Resource identifies the process producing telemetry. It is set once at
// tracer construction and stamped on every span; values never change after
// that.
type Resource struct {
	attrs map[string]string
}

// Well-known resource attribute keys.
const (
	ResourceServiceName    = "service.name"
	ResourceServiceVersion = "service.version"
	ResourceEnvironment    = "deployment.environment"
)

// NewResource builds a resource from the standard identity triple. Empty
// fields are omitted.
func NewResource(service, version, environment string) Resource {
	attrs := make(map[string]string, 3)
	if service != "" {
		attrs[ResourceServiceName] = service
	}
	if version != "" {
		attrs[ResourceServiceVersion] = version
	}
	if environment != "" {
		attrs[ResourceEnvironment] = environment
	}
	return Resource{attrs: attrs}
}

// WithAttribute returns a copy of the resource with one extra attribute.
// The receiver is not modified.
func (r Resource) WithAttribute(key, value string) Resource {
	attrs := make(map[string]string, len(r.attrs)+1)
	for k, v := range r.attrs {
		attrs[k] = v
	}
	attrs[key] = value
	return Resource{attrs: attrs}
}

// Attribute returns the value for a key, if present.
func (r Resource) Attribute(key string) (string, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// Attributes returns a copy of all resource attributes. The returned map is
// safe to modify.
func (r Resource) Attributes() map[string]string {
	if len(r.attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}
