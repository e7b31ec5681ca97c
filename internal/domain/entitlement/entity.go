// internal/domain/entitlement/entity.go
package entitlement

// Action is a gated resource-creation action. The set is closed so routing in
// the gate is exhaustive instead of falling through on unknown strings.
type Action string

const (
	ActionUploadPackage Action = "upload_package"
	ActionUploadService Action = "upload_service"
)

// IsValid reports whether a is a known gated action.
func (a Action) IsValid() bool {
	return a == ActionUploadPackage || a == ActionUploadService
}

// BusinessCategory is the provider's declared line of business.
type BusinessCategory string

const (
	CategoryAgency      BusinessCategory = "agency"
	CategoryCompany     BusinessCategory = "company"
	CategoryFullPackage BusinessCategory = "full_package"
	CategoryHotels      BusinessCategory = "hotels"
	CategoryVisa        BusinessCategory = "visa"
	CategoryTransport   BusinessCategory = "transport"
	CategoryActivities  BusinessCategory = "activities"
)

// ServiceType classifies a single-service listing.
type ServiceType string

const (
	ServiceHotel     ServiceType = "hotel"
	ServiceVisa      ServiceType = "visa"
	ServiceTransport ServiceType = "transport"
	ServiceActivity  ServiceType = "activity"
)

// categoryServiceTypes is the fixed mapping from a business category to the
// service types it may publish. Categories absent from the map may publish
// nothing without the plan's unlimited-uploads flag.
var categoryServiceTypes = map[BusinessCategory][]ServiceType{
	CategoryHotels:     {ServiceHotel},
	CategoryVisa:       {ServiceVisa},
	CategoryTransport:  {ServiceTransport},
	CategoryActivities: {ServiceActivity},
	CategoryAgency:     {ServiceHotel, ServiceVisa, ServiceTransport, ServiceActivity},
	CategoryCompany:    {ServiceHotel, ServiceVisa, ServiceTransport, ServiceActivity},
	CategoryFullPackage: {
		ServiceHotel, ServiceVisa, ServiceTransport, ServiceActivity,
	},
}

// packageCategories are the business categories allowed to publish bundled
// packages (the rest need the plan's unlimited-uploads flag).
var packageCategories = map[BusinessCategory]bool{
	CategoryAgency:      true,
	CategoryCompany:     true,
	CategoryFullPackage: true,
}

// CategoryAllowsService reports whether the category may publish the given
// service type under the fixed lookup table.
func CategoryAllowsService(category BusinessCategory, serviceType ServiceType) bool {
	for _, st := range categoryServiceTypes[category] {
		if st == serviceType {
			return true
		}
	}
	return false
}

// CategoryAllowsPackages reports whether the category is in the package
// publishing allow-list.
func CategoryAllowsPackages(category BusinessCategory) bool {
	return packageCategories[category]
}

// Context carries the request-scoped facts the gate evaluates besides the
// subscription itself.
type Context struct {
	BusinessCategory BusinessCategory `json:"business_category"`
	ServiceType      ServiceType      `json:"service_type,omitempty"`
}

// Decision is the gate's answer. Denials are normal results with a
// user-facing reason, never errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a negative decision with the given user-facing reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }
