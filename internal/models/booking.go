package models

import "time"

// Booking groups one or more slots under one customer. Slots refer back to it
// through Slot.BookingReference; there is no join table.
type Booking struct {
	ID              int64     `json:"id"`
	Reference       string    `json:"reference"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerPhone   string    `json:"customer_phone"`
	Notes           string    `json:"notes,omitempty"`
	EquipmentRental bool      `json:"equipment_rental"`
	CreatedAt       time.Time `json:"created_at"`
}

// Customer holds the contact fields captured when a booking is made.
type Customer struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,e164"`
	Notes           string `json:"notes" validate:"max=1000"`
	EquipmentRental bool   `json:"equipment_rental"`
}

func (c Customer) Booking() Booking {
	return Booking{
		CustomerName:    c.Name,
		CustomerEmail:   c.Email,
		CustomerPhone:   c.Phone,
		Notes:           c.Notes,
		EquipmentRental: c.EquipmentRental,
	}
}
