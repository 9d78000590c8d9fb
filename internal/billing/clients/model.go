package clients

import (
	"strings"
	"time"
)

// Type distinguishes private individuals from companies.
type Type string

const (
	TypeIndividual Type = "INDIVIDUAL"
	TypeCompany    Type = "COMPANY"
)

// Address is a postal address.
type Address struct {
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// Client is a customer of the garage.
type Client struct {
	ID          int64     `json:"id"`
	Type        Type      `json:"type"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	CompanyName string    `json:"companyName"`
	SIRET       string    `json:"siret"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     Address   `json:"address"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Info is the frozen copy of a client's identity embedded in an invoice.
type Info struct {
	Type        Type    `json:"type"`
	FirstName   string  `json:"firstName,omitempty"`
	LastName    string  `json:"lastName,omitempty"`
	CompanyName string  `json:"companyName,omitempty"`
	SIRET       string  `json:"siret,omitempty"`
	Email       string  `json:"email,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Address     Address `json:"address"`
}

// Snapshot copies the identity fields that an invoice must preserve.
func (c Client) Snapshot() Info {
	return Info{
		Type:        c.Type,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		CompanyName: c.CompanyName,
		SIRET:       c.SIRET,
		Email:       c.Email,
		Phone:       c.Phone,
		Address:     c.Address,
	}
}

// DisplayName returns the company name for companies and "First Last" otherwise.
func (i Info) DisplayName() string {
	if i.Type == TypeCompany && i.CompanyName != "" {
		return i.CompanyName
	}
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}
