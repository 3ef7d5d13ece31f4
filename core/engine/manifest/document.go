package manifest

// Document is the in-memory shape of a network-policy manifest. It exists
// only for the duration of validation.
type Document struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

type Metadata struct {
	Name        string            `yaml:"name"`
	Namespace   string            `yaml:"namespace"`
	Annotations map[string]string `yaml:"annotations"`
}

type Spec struct {
	EndpointSelector *EndpointSelector `yaml:"endpointSelector"`
	Ingress          []TrafficRule     `yaml:"ingress"`
	Egress           []TrafficRule     `yaml:"egress"`
}

type EndpointSelector struct {
	MatchLabels map[string]string `yaml:"matchLabels"`
}

// TrafficRule is one ingress or egress entry. Ingress rules use the From*
// fields, egress rules the To* fields.
type TrafficRule struct {
	FromEndpoints []EndpointSelector `yaml:"fromEndpoints"`
	FromCIDR      []string           `yaml:"fromCIDR"`
	FromEntities  []string           `yaml:"fromEntities"`
	ToEndpoints   []EndpointSelector `yaml:"toEndpoints"`
	ToCIDR        []string           `yaml:"toCIDR"`
	ToFQDNs       []FQDNSelector     `yaml:"toFQDNs"`
	ToEntities    []string           `yaml:"toEntities"`
	ToPorts       []PortRule         `yaml:"toPorts"`
}

type FQDNSelector struct {
	MatchName    string `yaml:"matchName"`
	MatchPattern string `yaml:"matchPattern"`
}

type PortRule struct {
	Ports []PortProtocol `yaml:"ports"`
}

type PortProtocol struct {
	Port     string `yaml:"port"`
	Protocol string `yaml:"protocol"`
}

// hasPeerRestriction reports whether the rule narrows its peer set at all.
func (r TrafficRule) hasPeerRestriction() bool {
	return len(r.FromEndpoints) > 0 || len(r.FromCIDR) > 0 || len(r.FromEntities) > 0 ||
		len(r.ToEndpoints) > 0 || len(r.ToCIDR) > 0 || len(r.ToFQDNs) > 0 || len(r.ToEntities) > 0
}

// hasPortRestriction reports whether the rule limits destination ports.
func (r TrafficRule) hasPortRestriction() bool {
	for _, pr := range r.ToPorts {
		if len(pr.Ports) > 0 {
			return true
		}
	}
	return false
}

// allEntities are peer entity names that stand for "everything".
var allEntities = map[string]bool{
	"all": true,
	"any": true,
	"*":   true,
}

// targetsAll reports whether the rule explicitly names an all/any entity.
func (r TrafficRule) targetsAll() bool {
	for _, e := range r.FromEntities {
		if allEntities[e] {
			return true
		}
	}
	for _, e := range r.ToEntities {
		if allEntities[e] {
			return true
		}
	}
	return false
}
