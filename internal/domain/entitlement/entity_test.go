package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryAllowsService(t *testing.T) {
	tests := []struct {
		category    BusinessCategory
		serviceType ServiceType
		want        bool
	}{
		{CategoryHotels, ServiceHotel, true},
		{CategoryHotels, ServiceVisa, false},
		{CategoryHotels, ServiceTransport, false},
		{CategoryVisa, ServiceVisa, true},
		{CategoryVisa, ServiceHotel, false},
		{CategoryTransport, ServiceTransport, true},
		{CategoryActivities, ServiceActivity, true},
		{CategoryActivities, ServiceHotel, false},

		{CategoryAgency, ServiceHotel, true},
		{CategoryAgency, ServiceVisa, true},
		{CategoryAgency, ServiceTransport, true},
		{CategoryAgency, ServiceActivity, true},
		{CategoryCompany, ServiceVisa, true},
		{CategoryFullPackage, ServiceActivity, true},

		{BusinessCategory("unknown"), ServiceHotel, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category)+"_"+string(tt.serviceType), func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryAllowsService(tt.category, tt.serviceType))
		})
	}
}

func TestCategoryAllowsPackages(t *testing.T) {
	assert.True(t, CategoryAllowsPackages(CategoryAgency))
	assert.True(t, CategoryAllowsPackages(CategoryCompany))
	assert.True(t, CategoryAllowsPackages(CategoryFullPackage))

	assert.False(t, CategoryAllowsPackages(CategoryHotels))
	assert.False(t, CategoryAllowsPackages(CategoryVisa))
	assert.False(t, CategoryAllowsPackages(CategoryTransport))
	assert.False(t, CategoryAllowsPackages(CategoryActivities))
}

func TestActionIsValid(t *testing.T) {
	assert.True(t, ActionUploadPackage.IsValid())
	assert.True(t, ActionUploadService.IsValid())
	assert.False(t, Action("delete_package").IsValid())
	assert.False(t, Action("").IsValid())
}

func TestDecisionHelpers(t *testing.T) {
	allow := Allow()
	assert.True(t, allow.Allowed)
	assert.Empty(t, allow.Reason)

	deny := Deny("no active subscription")
	assert.False(t, deny.Allowed)
	assert.Equal(t, "no active subscription", deny.Reason)
}
