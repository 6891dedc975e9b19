package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"wheres-my-laundry/pkg/models"

	"github.com/shopspring/decimal"
)

var (
	validName    = regexp.MustCompile(`^[\p{L}\s\-'.]+$`)
	validContact = regexp.MustCompile(`^\+?[0-9\s\-]{7,20}$`)

	maxWeight = decimal.NewFromInt(999)
	maxPrice  = decimal.RequireFromString("9999.99")
)

type OrderValidator struct{}

func NewOrderValidator() *OrderValidator {
	return &OrderValidator{}
}

func (v *OrderValidator) Validate(req *models.CreateOrderRequest) error {
	if err := v.validateCustomerName(req.CustomerName); err != nil {
		return err
	}

	if req.CustomerContact != "" && !validContact.MatchString(req.CustomerContact) {
		return errors.New("customer_contact must be a phone number")
	}

	if !req.Method.Valid() {
		return errors.New("method must be one of: dropoff, pickup, delivery")
	}

	if req.ServiceID == nil || strings.TrimSpace(*req.ServiceID) == "" {
		return errors.New("service_id is required")
	}

	if err := v.validateOption("detergent", req.Detergent); err != nil {
		return err
	}
	if err := v.validateOption("softener", req.Softener); err != nil {
		return err
	}

	// Conditional fields based on method
	if req.Method.RequiresLocation() {
		if req.DeliveryLocation == nil {
			return errors.New("delivery_location is required for pickup and delivery orders")
		}
		return v.validateLocation(req.DeliveryLocation)
	}
	if req.DeliveryLocation != nil {
		return errors.New("delivery_location must not be present for dropoff orders")
	}

	return nil
}

func (v *OrderValidator) ValidateWeight(req *models.RecordWeightRequest) error {
	if strings.TrimSpace(req.ServiceID) == "" {
		return errors.New("service_id is required")
	}
	if !req.Weight.IsPositive() || req.Weight.GreaterThan(maxWeight) {
		return errors.New("weight must be greater than 0 and at most 999 kg")
	}
	if !req.Weight.Equal(req.Weight.Round(2)) {
		return errors.New("weight must have at most 2 decimal places")
	}
	if req.PricePerUnit.IsNegative() || req.PricePerUnit.GreaterThan(maxPrice) {
		return errors.New("price_per_unit must be between 0 and 9999.99")
	}
	return nil
}

func (v *OrderValidator) validateCustomerName(name string) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < 1 || utf8.RuneCountInString(name) > 100 {
		return errors.New("customer_name must be between 1 and 100 characters")
	}

	// Letters, spaces, hyphens, apostrophes and periods
	if !validName.MatchString(name) {
		return errors.New("customer_name contains invalid characters")
	}

	return nil
}

func (v *OrderValidator) validateOption(field string, value *string) error {
	if value == nil {
		return nil
	}
	if utf8.RuneCountInString(*value) > 50 {
		return errors.New(field + " must be at most 50 characters")
	}
	return nil
}

func (v *OrderValidator) validateLocation(loc *models.Location) error {
	if utf8.RuneCountInString(strings.TrimSpace(loc.Address)) < 10 {
		return errors.New("delivery_location.address must be at least 10 characters long")
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return errors.New("delivery_location.latitude must be between -90 and 90")
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return errors.New("delivery_location.longitude must be between -180 and 180")
	}
	return nil
}
