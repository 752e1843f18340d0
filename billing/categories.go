package billing

import "github.com/warp/billing-engine/generic"

// Built-in bill categories. Deployments can register more through config.
var (
	CategoryUtility = generic.Category{
		ID:             "utility",
		Name:           "Utility",
		UsageLabel:     "Units",
		DefaultDueDays: 15,
	}
	CategoryAmenity = generic.Category{
		ID:             "amenity",
		Name:           "Amenity",
		UsageLabel:     "Hours",
		DefaultDueDays: 7,
	}
	CategoryMaintenance = generic.Category{
		ID:             "maintenance",
		Name:           "Maintenance",
		UsageLabel:     "Sq. ft.",
		DefaultDueDays: 30,
	}
)

func init() {
	generic.RegisterCategory(CategoryUtility)
	generic.RegisterCategory(CategoryAmenity)
	generic.RegisterCategory(CategoryMaintenance)
}
